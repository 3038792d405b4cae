package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidAmount indicates a non-positive item amount.
var ErrInvalidAmount = errors.New("amount must be positive")

// InventoryItem is a stack of one material held by a player.
type InventoryItem struct {
	Player    string
	Material  string
	Amount    int
	UpdatedAt time.Time
}

func normalizePlayer(player string) string {
	return strings.ToLower(strings.TrimSpace(player))
}

// AddInventoryItem adds amount of material to the player's inventory and
// returns the new stack size.
func (db *DB) AddInventoryItem(ctx context.Context, player, material string, amount int) (int, error) {
	if amount < 1 {
		return 0, ErrInvalidAmount
	}

	var total int
	err := db.QueryRowContext(ctx, `
		INSERT INTO inventory_items (player, material, amount)
		VALUES (?, ?, ?)
		ON CONFLICT (player, material) DO UPDATE
		SET amount = amount + excluded.amount, updated_at = CURRENT_TIMESTAMP
		RETURNING amount
	`, normalizePlayer(player), material, amount).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("adding inventory item: %w", err)
	}
	return total, nil
}

// GetInventoryItems returns the player's stacks ordered by material.
func (db *DB) GetInventoryItems(ctx context.Context, player string) ([]InventoryItem, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT player, material, amount, updated_at
		FROM inventory_items
		WHERE player = ?
		ORDER BY material ASC
	`, normalizePlayer(player))
	if err != nil {
		return nil, fmt.Errorf("querying inventory: %w", err)
	}
	defer rows.Close()

	var items []InventoryItem
	for rows.Next() {
		var it InventoryItem
		if err := rows.Scan(&it.Player, &it.Material, &it.Amount, &it.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning inventory item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetInventoryAmount returns how much of material the player holds.
func (db *DB) GetInventoryAmount(ctx context.Context, player, material string) (int, error) {
	var amount int
	err := db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM inventory_items WHERE player = ? AND material = ?
	`, normalizePlayer(player), material).Scan(&amount)
	if err != nil {
		return 0, fmt.Errorf("querying inventory amount: %w", err)
	}
	return amount, nil
}

// ClearInventory removes every stack the player holds and returns how many
// stacks were removed.
func (db *DB) ClearInventory(ctx context.Context, player string) (int64, error) {
	result, err := db.ExecContext(ctx, `DELETE FROM inventory_items WHERE player = ?`, normalizePlayer(player))
	if err != nil {
		return 0, fmt.Errorf("clearing inventory: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}
