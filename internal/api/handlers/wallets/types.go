package wallets

import (
	"net/http"
	"time"

	"github.com/akash-R-A-J/idmap-gateway/internal/api/httperrors"
	"github.com/akash-R-A-J/idmap-gateway/internal/mpc/storage"
	"github.com/akash-R-A-J/idmap-gateway/internal/util"
	"github.com/akash-R-A-J/idmap-gateway/internal/wallet"
	"github.com/labstack/echo/v4"
)

type walletResponse struct {
	UserID    string    `json:"userId"`
	Chain     string    `json:"chain"`
	PublicKey string    `json:"publicKey"`
	Address   string    `json:"address"`
	SessionID string    `json:"sessionId"`
	CreatedAt time.Time `json:"createdAt"`
}

type signatureResponse struct {
	CorrelationID string    `json:"correlationId"`
	Signature     string    `json:"signature"`
	TxHash        string    `json:"txHash,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

type walletWithHistoryResponse struct {
	walletResponse
	Signatures []signatureResponse `json:"signatures"`
}

type signResponse struct {
	Signature     string `json:"signature"`
	Address       string `json:"address"`
	SessionID     string `json:"sessionId"`
	CorrelationID string `json:"correlationId"`
	RawTx         string `json:"rawTx,omitempty"`
	TxHash        string `json:"txHash,omitempty"`
	Verified      bool   `json:"verified"`
	Broadcasted   bool   `json:"broadcasted"`
	DurationMs    int64  `json:"durationMs"`
}

func newWalletResponse(r *storage.KeyRecord) walletResponse {
	return walletResponse{
		UserID:    r.UserID,
		Chain:     r.Chain,
		PublicKey: r.PublicKey,
		Address:   r.Address,
		SessionID: r.SessionID,
		CreatedAt: r.CreatedAt,
	}
}

func newSignResponse(r *wallet.SignResponse) signResponse {
	return signResponse{
		Signature:     r.Signature,
		Address:       r.Address,
		SessionID:     r.SessionID,
		CorrelationID: r.CorrelationID,
		RawTx:         r.RawTx,
		TxHash:        r.TxHash,
		Verified:      r.Verified,
		Broadcasted:   r.Broadcasted,
		DurationMs:    r.Duration.Milliseconds(),
	}
}

// userID returns the user stored on the request context by the auth middleware.
func userID(c echo.Context) (string, error) {
	id, ok := util.UserIDFromContext(c.Request().Context())
	if !ok {
		return "", httperrors.NewHTTPError(http.StatusUnauthorized, httperrors.TypeUnauthorized, "Missing user")
	}
	return id, nil
}
