package midtrans

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
)

// Transaction statuses Midtrans reports via HTTP notification.
const (
	StatusCapture    = "capture"
	StatusSettlement = "settlement"
	StatusPending    = "pending"
	StatusDeny       = "deny"
	StatusCancel     = "cancel"
	StatusExpire     = "expire"
	StatusFailure    = "failure"

	FraudAccept    = "accept"
	FraudChallenge = "challenge"
	FraudDeny      = "deny"
)

// Notification is the payload Midtrans POSTs to the callback endpoint.
type Notification struct {
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
	TransactionTime   string `json:"transaction_time"`
	SettlementTime    string `json:"settlement_time"`
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	PaymentType       string `json:"payment_type"`
	FraudStatus       string `json:"fraud_status"`
}

// ParseNotification decodes a callback body.
func ParseNotification(body io.Reader) (*Notification, error) {
	var n Notification
	if err := json.NewDecoder(io.LimitReader(body, 1<<20)).Decode(&n); err != nil {
		return nil, fmt.Errorf("decoding notification: %w", err)
	}
	if n.OrderID == "" || n.TransactionStatus == "" {
		return nil, fmt.Errorf("notification missing order_id or transaction_status")
	}
	return &n, nil
}

// VerifySignature checks the sha512 signature Midtrans attaches to every
// notification: sha512(order_id + status_code + gross_amount + server_key).
func (n *Notification) VerifySignature(serverKey string) bool {
	if n.SignatureKey == "" || serverKey == "" {
		return false
	}
	sum := sha512.Sum512([]byte(n.OrderID + n.StatusCode + n.GrossAmount + serverKey))
	expected := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(expected), []byte(n.SignatureKey)) == 1
}

// IsPaid reports whether the notification represents a successful payment.
// Card captures count only once fraud review accepts them.
func (n *Notification) IsPaid() bool {
	switch n.TransactionStatus {
	case StatusSettlement:
		return true
	case StatusCapture:
		return n.FraudStatus == "" || n.FraudStatus == FraudAccept
	default:
		return false
	}
}

// IsFailed reports whether the payment is terminally unsuccessful.
func (n *Notification) IsFailed() bool {
	switch n.TransactionStatus {
	case StatusDeny, StatusCancel, StatusExpire, StatusFailure:
		return true
	case StatusCapture:
		return n.FraudStatus == FraudDeny
	default:
		return false
	}
}
