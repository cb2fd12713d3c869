// Package audit records ledger mutations as structured log entries.
package audit

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// Event is one audited ledger operation.
type Event struct {
	Timestamp   time.Time
	EventType   string
	OperationID string
	AccountID   int64
	Amount      decimal.Decimal
	Status      string
	Details     map[string]string
}

type Logger struct {
	log logrus.FieldLogger
}

func NewLogger(log logrus.FieldLogger) *Logger {
	return &Logger{log: log}
}

// NewOperationID returns a fresh id correlating the entries of one operation.
func NewOperationID() string {
	return uuid.NewString()
}

func (a *Logger) LogTransfer(operationID string, fromAccount, toAccount int64, amount decimal.Decimal, status string) {
	a.write(Event{
		Timestamp:   time.Now(),
		EventType:   "TRANSFER",
		OperationID: operationID,
		AccountID:   fromAccount,
		Amount:      amount,
		Status:      status,
		Details: map[string]string{
			"to_account": strconv.FormatInt(toAccount, 10),
		},
	})
}

func (a *Logger) LogOperation(operationID string, accountID int64, operation string, amount decimal.Decimal) {
	a.write(Event{
		Timestamp:   time.Now(),
		EventType:   operation,
		OperationID: operationID,
		AccountID:   accountID,
		Amount:      amount,
		Status:      StatusSuccess,
	})
}

func (a *Logger) LogError(operationID string, accountID int64, operation string, err error) {
	a.write(Event{
		Timestamp:   time.Now(),
		EventType:   operation,
		OperationID: operationID,
		AccountID:   accountID,
		Status:      StatusFailed,
		Details:     map[string]string{"error": err.Error()},
	})
}

func (a *Logger) write(event Event) {
	if a == nil || a.log == nil {
		return
	}

	fields := logrus.Fields{
		"audit":        true,
		"event_type":   event.EventType,
		"operation_id": event.OperationID,
		"status":       event.Status,
		"event_time":   event.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if event.AccountID != 0 {
		fields["account_id"] = event.AccountID
	}
	if !event.Amount.IsZero() {
		fields["amount"] = event.Amount.String()
	}
	for k, v := range event.Details {
		fields[k] = v
	}

	entry := a.log.WithFields(fields)
	if event.Status == StatusFailed {
		entry.Warn("AUDIT")
		return
	}
	entry.Info("AUDIT")
}
