package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/atkgudang/persediaan/internal/model"
)

const itemColumns = `id, name, unit, minimum_stock, description, image_mime, created_at, updated_at, deleted_at`

// CreateItem creates a new catalog item.
func CreateItem(ctx context.Context, q Querier, name, unit string, minimumStock int, description string) (*model.Item, error) {
	if minimumStock < 0 {
		return nil, fmt.Errorf("minimum stock must not be negative")
	}

	result, err := q.ExecContext(ctx,
		`INSERT INTO items (name, unit, minimum_stock, description, created_at, updated_at)
		 VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		name, unit, minimumStock, nullString(description),
	)
	if err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting item id: %w", err)
	}

	return GetItem(ctx, q, id)
}

// GetItem returns an item by ID, including soft-deleted ones.
func GetItem(ctx context.Context, q Querier, id int64) (*model.Item, error) {
	row := q.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return item, nil
}

// ListItems returns all non-deleted items, optionally filtered by a name fragment.
func ListItems(ctx context.Context, q Querier, search string) ([]model.Item, error) {
	var rows *sql.Rows
	var err error

	if search != "" {
		rows, err = q.QueryContext(ctx,
			`SELECT `+itemColumns+` FROM items
			 WHERE deleted_at IS NULL AND name LIKE '%' || ? || '%' ORDER BY name`, search,
		)
	} else {
		rows, err = q.QueryContext(ctx,
			`SELECT `+itemColumns+` FROM items WHERE deleted_at IS NULL ORDER BY name`,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// UpdateItem updates an item's catalog metadata.
func UpdateItem(ctx context.Context, q Querier, id int64, name, unit string, minimumStock int, description string) error {
	if minimumStock < 0 {
		return fmt.Errorf("minimum stock must not be negative")
	}

	_, err := q.ExecContext(ctx,
		`UPDATE items SET name = ?, unit = ?, minimum_stock = ?, description = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL`,
		name, unit, minimumStock, nullString(description), id,
	)
	if err != nil {
		return fmt.Errorf("updating item: %w", err)
	}
	return nil
}

// DeleteItem soft-deletes an item. Its ledger stays as audit history.
func DeleteItem(ctx context.Context, q Querier, id int64) error {
	_, err := q.ExecContext(ctx,
		`UPDATE items SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	return nil
}

// SetItemImage sets an item's catalog photo.
func SetItemImage(ctx context.Context, q Querier, id int64, image []byte, mime string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE items SET image = ?, image_mime = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL`,
		image, mime, id,
	)
	if err != nil {
		return fmt.Errorf("setting item image: %w", err)
	}
	return nil
}

// GetItemImage returns an item's photo and MIME type.
func GetItemImage(ctx context.Context, q Querier, id int64) ([]byte, string, error) {
	var image []byte
	var mime sql.NullString
	err := q.QueryRowContext(ctx,
		`SELECT image, image_mime FROM items WHERE id = ?`, id,
	).Scan(&image, &mime)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting item image: %w", err)
	}
	return image, mime.String, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*model.Item, error) {
	item := &model.Item{}
	var description, imageMime sql.NullString
	err := row.Scan(&item.ID, &item.Name, &item.Unit, &item.MinimumStock, &description, &imageMime,
		&item.CreatedAt, &item.UpdatedAt, &item.DeletedAt)
	if err != nil {
		return nil, err
	}
	item.Description = description.String
	item.ImageMime = imageMime.String
	return item, nil
}
