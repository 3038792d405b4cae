package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrDeliveryNotFound indicates no ledger entry matches the lookup.
var ErrDeliveryNotFound = errors.New("delivery not found")

// ErrDuplicateDelivery indicates a ledger entry with the same request id exists.
var ErrDuplicateDelivery = errors.New("delivery already recorded")

// Delivery is one processed delivery request as recorded in the ledger.
type Delivery struct {
	ID        int64
	RequestID string
	OrderID   string
	Recipient string
	Success   bool
	Error     string
	Executed  []string
	Failed    []string
	Queued    []string
	CreatedAt time.Time
}

// RecordDelivery appends d to the ledger and returns it with ID and CreatedAt set.
func (db *DB) RecordDelivery(ctx context.Context, d Delivery) (*Delivery, error) {
	executed, err := encodeList(d.Executed)
	if err != nil {
		return nil, fmt.Errorf("encoding executed commands: %w", err)
	}
	failed, err := encodeList(d.Failed)
	if err != nil {
		return nil, fmt.Errorf("encoding failed commands: %w", err)
	}
	queued, err := encodeList(d.Queued)
	if err != nil {
		return nil, fmt.Errorf("encoding queued commands: %w", err)
	}

	result, err := db.ExecContext(ctx, `
		INSERT INTO deliveries (request_id, order_id, recipient, success, error, executed_commands, failed_commands, queued_commands)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, d.RequestID, d.OrderID, d.Recipient, d.Success, d.Error, executed, failed, queued)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateDelivery
		}
		return nil, fmt.Errorf("recording delivery: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting delivery id: %w", err)
	}

	return db.getDelivery(ctx, `WHERE id = ?`, id)
}

// GetDelivery returns the ledger entry for a request id.
func (db *DB) GetDelivery(ctx context.Context, requestID string) (*Delivery, error) {
	return db.getDelivery(ctx, `WHERE request_id = ?`, requestID)
}

// ListDeliveries returns the most recent entries first.
func (db *DB) ListDeliveries(ctx context.Context, limit int) ([]Delivery, error) {
	return db.listDeliveries(ctx, `ORDER BY id DESC LIMIT ?`, limit)
}

// DeliveriesForOrder returns every entry recorded for orderID, oldest first.
func (db *DB) DeliveriesForOrder(ctx context.Context, orderID string) ([]Delivery, error) {
	return db.listDeliveries(ctx, `WHERE order_id = ? ORDER BY id ASC`, orderID)
}

// CountDeliveries returns the total and failed entry counts.
func (db *DB) CountDeliveries(ctx context.Context) (total, failed int, err error) {
	err = db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), 0) FROM deliveries
	`).Scan(&total, &failed)
	if err != nil {
		return 0, 0, fmt.Errorf("counting deliveries: %w", err)
	}
	return total, failed, nil
}

const deliveryColumns = `id, request_id, order_id, recipient, success, error, executed_commands, failed_commands, queued_commands, created_at`

func (db *DB) getDelivery(ctx context.Context, where string, arg any) (*Delivery, error) {
	row := db.QueryRowContext(ctx, `SELECT `+deliveryColumns+` FROM deliveries `+where, arg)
	d, err := scanDelivery(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeliveryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying delivery: %w", err)
	}
	return d, nil
}

func (db *DB) listDeliveries(ctx context.Context, tail string, arg any) ([]Delivery, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+deliveryColumns+` FROM deliveries `+tail, arg)
	if err != nil {
		return nil, fmt.Errorf("querying deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning delivery: %w", err)
		}
		deliveries = append(deliveries, *d)
	}
	return deliveries, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDelivery(s scanner) (*Delivery, error) {
	var d Delivery
	var executed, failed, queued string
	if err := s.Scan(&d.ID, &d.RequestID, &d.OrderID, &d.Recipient, &d.Success, &d.Error,
		&executed, &failed, &queued, &d.CreatedAt); err != nil {
		return nil, err
	}

	var err error
	if d.Executed, err = decodeList(executed); err != nil {
		return nil, err
	}
	if d.Failed, err = decodeList(failed); err != nil {
		return nil, err
	}
	if d.Queued, err = decodeList(queued); err != nil {
		return nil, err
	}
	return &d, nil
}

func encodeList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeList(raw string) ([]string, error) {
	var items []string
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("decoding command list: %w", err)
	}
	return items, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
