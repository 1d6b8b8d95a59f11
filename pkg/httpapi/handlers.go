package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sigweihq/walletsession/pkg/purchase"
	"github.com/sigweihq/walletsession/pkg/session"
	"github.com/sigweihq/walletsession/pkg/types"
	"github.com/sigweihq/walletsession/pkg/utils"
)

// Session is the part of session.Controller the API drives
type Session interface {
	Snapshot() session.Snapshot
	RequestSwitch() bool
	DismissWarning()
	RefreshBalance()
	BuyTokens(ctx context.Context) (*purchase.Session, error)
	Disconnect(ctx context.Context) error
}

type Handler struct {
	session Session
	logger  *slog.Logger
}

func NewHandler(s Session, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{session: s, logger: logger}
}

// -------- response DTOs --------

type complianceRes struct {
	Phase          string `json:"phase"`
	IsCompliant    bool   `json:"is_compliant"`
	WarningVisible bool   `json:"warning_visible"`
	SwitchInFlight bool   `json:"switch_in_flight"`
	LastError      string `json:"last_error,omitempty"`
	Message        string `json:"message,omitempty"`
}

type balanceRes struct {
	Phase   string `json:"phase"`
	Amount  string `json:"amount,omitempty"`
	Compact string `json:"compact,omitempty"`
	Symbol  string `json:"symbol"`
	Error   string `json:"error,omitempty"`
}

type sessionRes struct {
	Connected       bool          `json:"connected"`
	Address         string        `json:"address,omitempty"`
	ShortAddress    string        `json:"short_address,omitempty"`
	ChainID         int64         `json:"chain_id,omitempty"`
	Indicator       string        `json:"indicator"`
	Compliance      complianceRes `json:"compliance"`
	Balance         balanceRes    `json:"balance"`
	PurchaseOpen    bool          `json:"purchase_open"`
	PurchaseMessage string        `json:"purchase_message,omitempty"`
}

type switchRes struct {
	Started bool `json:"started"`
}

type buyRes struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

func newSessionRes(s session.Snapshot) sessionRes {
	res := sessionRes{
		Connected: s.Connection.IsConnected(),
		ChainID:   s.Connection.ChainID,
		Indicator: s.Indicator,
		Compliance: complianceRes{
			Phase:          s.Compliance.Phase.String(),
			IsCompliant:    s.Compliance.IsCompliant,
			WarningVisible: s.Compliance.WarningVisible,
			SwitchInFlight: s.Compliance.SwitchInFlight,
			LastError:      s.Compliance.LastError.String(),
			Message:        s.Compliance.Message,
		},
		Balance: balanceRes{
			Phase:  s.Balance.Phase.String(),
			Symbol: s.Balance.Symbol,
			Error:  s.Balance.Err.String(),
		},
		PurchaseOpen:    s.PurchaseOpen,
		PurchaseMessage: s.PurchaseMessage,
	}
	if s.Connection.HasAddress() {
		res.Address = s.Connection.Address.Hex()
		res.ShortAddress = utils.ShortAddress(s.Connection.Address)
	}
	if s.Balance.Phase == types.BalanceReady && s.Balance.Value.Valid {
		res.Balance.Amount = s.Balance.Value.Decimal.String()
		res.Balance.Compact = utils.FormatCompact(s.Balance.Value.Decimal)
	}
	return res
}

func (h *Handler) Health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// GET /api/session
func (h *Handler) Session(c *gin.Context) {
	c.JSON(http.StatusOK, newSessionRes(h.session.Snapshot()))
}

// POST /api/session/switch
func (h *Handler) RequestSwitch(c *gin.Context) {
	started := h.session.RequestSwitch()
	if !started {
		c.JSON(http.StatusConflict, switchRes{Started: false})
		return
	}
	c.JSON(http.StatusAccepted, switchRes{Started: true})
}

// POST /api/session/dismiss
func (h *Handler) DismissWarning(c *gin.Context) {
	h.session.DismissWarning()
	c.Status(http.StatusNoContent)
}

// POST /api/session/refresh
func (h *Handler) RefreshBalance(c *gin.Context) {
	h.session.RefreshBalance()
	c.Status(http.StatusAccepted)
}

// POST /api/session/buy
func (h *Handler) BuyTokens(c *gin.Context) {
	s, err := h.session.BuyTokens(c.Request.Context())
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, buyRes{SessionID: s.ID, URL: s.URL})
	case errors.Is(err, types.ErrPopupBlocked):
		c.JSON(http.StatusConflict, gin.H{"error": h.session.Snapshot().PurchaseMessage})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

// POST /api/session/disconnect
func (h *Handler) Disconnect(c *gin.Context) {
	if err := h.session.Disconnect(c.Request.Context()); err != nil {
		// the session is reset either way
		h.logger.Warn("wallet disconnect reported an error", "error", err)
		c.JSON(http.StatusOK, gin.H{"warning": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
