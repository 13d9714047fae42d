package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"spendlens/internal/fault"
)

// itemColumns is the projection shared by every purchase query. The
// item_embed column is deliberately absent: embeddings are consumed by the
// external semantic service, never by this core.
const itemColumns = `item_id, purchase_id, user_id, merchant, item_name, category,
	COALESCE(subcategory, ''), item_text, price, qty, ts,
	COALESCE(detected_needwant, 'unset'), COALESCE(user_needwant, 'unset'), confidence,
	COALESCE(loc_city, ''), COALESCE(loc_state, ''), COALESCE(loc_country, ''), COALESCE(loc_postal, ''),
	status, created_at`

func scanItem(row pgx.Rows, item *PurchaseItem) error {
	return row.Scan(
		&item.ItemID, &item.PurchaseID, &item.UserID, &item.Merchant, &item.ItemName, &item.Category,
		&item.Subcategory, &item.ItemText, &item.Price, &item.Qty, &item.TS,
		&item.DetectedNeedWant, &item.UserNeedWant, &item.Confidence,
		&item.BuyerLocation.City, &item.BuyerLocation.State, &item.BuyerLocation.Country, &item.BuyerLocation.PostalCode,
		&item.Status, &item.CreatedAt,
	)
}

func collectItems(rows pgx.Rows) ([]PurchaseItem, error) {
	defer rows.Close()
	var out []PurchaseItem
	for rows.Next() {
		var item PurchaseItem
		if err := scanItem(rows, &item); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// ListItemsParams bounds a purchase listing. Zero times mean unbounded;
// limit 0 means no limit. Results are newest first.
type ListItemsParams struct {
	UserID string
	Since  time.Time
	Until  time.Time
	Limit  int
}

// ListItems returns the user's active purchase items, ts descending.
func (w *Warehouse) ListItems(ctx context.Context, p ListItemsParams) ([]PurchaseItem, error) {
	ctx, cancel := w.opCtx(ctx)
	defer cancel()

	sql := `SELECT ` + itemColumns + ` FROM purchase_items WHERE user_id = $1 AND status = 'active'`
	args := []any{p.UserID}
	if !p.Since.IsZero() {
		args = append(args, p.Since)
		sql += fmt.Sprintf(" AND ts >= $%d", len(args))
	}
	if !p.Until.IsZero() {
		args = append(args, p.Until)
		sql += fmt.Sprintf(" AND ts < $%d", len(args))
	}
	sql += " ORDER BY ts DESC"
	if p.Limit > 0 {
		args = append(args, p.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := w.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, storeErr(err, "list items")
	}
	items, err := collectItems(rows)
	return items, storeErr(err, "list items")
}

// ListItemsByCategory returns the user's active items in one category.
func (w *Warehouse) ListItemsByCategory(ctx context.Context, userID, category string, since, until time.Time) ([]PurchaseItem, error) {
	ctx, cancel := w.opCtx(ctx)
	defer cancel()

	sql := `SELECT ` + itemColumns + ` FROM purchase_items
		WHERE user_id = $1 AND status = 'active' AND category = $2`
	args := []any{userID, category}
	if !since.IsZero() {
		args = append(args, since)
		sql += fmt.Sprintf(" AND ts >= $%d", len(args))
	}
	if !until.IsZero() {
		args = append(args, until)
		sql += fmt.Sprintf(" AND ts < $%d", len(args))
	}
	sql += " ORDER BY ts DESC"

	rows, err := w.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, storeErr(err, "list items by category")
	}
	items, err := collectItems(rows)
	return items, storeErr(err, "list items by category")
}

// TopItemsByPrice returns the n priciest items (price × qty) of the given
// week, ties broken by ts descending then item_id ascending.
func (w *Warehouse) TopItemsByPrice(ctx context.Context, userID string, weekStart Date, n int) ([]PurchaseItem, error) {
	ctx, cancel := w.opCtx(ctx)
	defer cancel()

	rows, err := w.pool.Query(ctx, `SELECT `+itemColumns+` FROM purchase_items
		WHERE user_id = $1 AND status = 'active' AND ts >= $2 AND ts < $3
		ORDER BY price * qty DESC, ts DESC, item_id ASC
		LIMIT $4`,
		userID, weekStart.Time(), weekStart.AddDays(7).Time(), n)
	if err != nil {
		return nil, storeErr(err, "top items by price")
	}
	items, err := collectItems(rows)
	return items, storeErr(err, "top items by price")
}

// ActiveUsersForWeek returns the distinct users with at least one active
// item in the week, sorted for stable iteration order.
func (w *Warehouse) ActiveUsersForWeek(ctx context.Context, weekStart Date) ([]string, error) {
	ctx, cancel := w.opCtx(ctx)
	defer cancel()

	rows, err := w.pool.Query(ctx, `SELECT DISTINCT user_id FROM purchase_items
		WHERE status = 'active' AND ts >= $1 AND ts < $2
		ORDER BY user_id`,
		weekStart.Time(), weekStart.AddDays(7).Time())
	if err != nil {
		return nil, storeErr(err, "active users for week")
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, storeErr(err, "active users for week")
		}
		users = append(users, u)
	}
	return users, storeErr(rows.Err(), "active users for week")
}

// SearchItems matches the user's active items by case-insensitive substring
// of item_text, newest first.
func (w *Warehouse) SearchItems(ctx context.Context, userID, query string, limit int) ([]PurchaseItem, error) {
	ctx, cancel := w.opCtx(ctx)
	defer cancel()

	rows, err := w.pool.Query(ctx, `SELECT `+itemColumns+` FROM purchase_items
		WHERE user_id = $1 AND status = 'active' AND item_text ILIKE '%' || $2 || '%'
		ORDER BY ts DESC
		LIMIT $3`,
		userID, escapeLike(query), limit)
	if err != nil {
		return nil, storeErr(err, "search items")
	}
	items, err := collectItems(rows)
	return items, storeErr(err, "search items")
}

// SetUserNeedWant records the user's one-time need/want feedback on an item.
func (w *Warehouse) SetUserNeedWant(ctx context.Context, userID, itemID, label string) error {
	if label != NeedWantNeed && label != NeedWantWant && label != NeedWantUnset {
		return fault.New(fault.BadRequest, "label %q must be need, want or unset", label)
	}
	ctx, cancel := w.opCtx(ctx)
	defer cancel()

	tag, err := w.pool.Exec(ctx, `UPDATE purchase_items SET user_needwant = $3
		WHERE user_id = $1 AND item_id = $2`,
		userID, itemID, label)
	if err != nil {
		return storeErr(err, "set user needwant")
	}
	if tag.RowsAffected() == 0 {
		return fault.New(fault.NotFound, "item %s not found for user %s", itemID, userID)
	}
	return nil
}
