package repository

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/order-registry/internal/domain/money"
	"github.com/xenking/order-registry/internal/domain/order"
)

const orderColumns = `id, name, description, reference, reference_id,
	organization_id, organization_code, organization_name,
	target_organization, customer, remark,
	price, price_currency, taxes, created_at, modified_at`

const (
	insertOrderSQL = `INSERT INTO orders (` + orderColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	updateOrderSQL = `UPDATE orders
	SET name = $2, description = $3, target_organization = $4, customer = $5, remark = $6,
	    price = $7, price_currency = $8, taxes = $9, modified_at = $10
	WHERE id = $1`

	selectOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	selectOrderForUpdateSQL = selectOrderSQL + ` FOR UPDATE`

	selectOrderByItemSQL = `SELECT ` + orderColumns + ` FROM orders
	WHERE id = (SELECT order_id FROM order_items WHERE id = $1)`

	deleteOrderSQL = `DELETE FROM orders WHERE id = $1`

	deleteItemsSQL = `DELETE FROM order_items WHERE order_id = $1`

	insertItemSQL = `INSERT INTO order_items
	(id, order_id, position, name, description, offer, product, quantity, price, price_currency, created_at, modified_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	insertTaxSQL = `INSERT INTO order_item_taxes (item_id, position, tax_id, name, percentage)
	VALUES ($1, $2, $3, $4, $5)`

	selectItemsSQL = `SELECT id, order_id, name, description, offer, product, quantity, price, price_currency, created_at, modified_at
	FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, position`

	selectTaxesSQL = `SELECT item_id, tax_id, name, percentage
	FROM order_item_taxes WHERE item_id = ANY($1) ORDER BY item_id, position`

	nextReferenceSQL = `INSERT INTO reference_sequences (organization_code, year, last_value)
	VALUES ($1, $2, 1)
	ON CONFLICT (organization_code, year)
	DO UPDATE SET last_value = reference_sequences.last_value + 1
	RETURNING last_value`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Items
// and their taxes live in their own tables; the derived tax summary is stored
// as JSONB next to the price.
type OrderRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool, now: time.Now}
}

// Create runs the pre-save hook and inserts the order with its items in one
// transaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := o.BeforeSave(r.now()); err != nil {
			return err
		}

		price := o.Price()
		_, err := tx.Exec(ctx, insertOrderSQL,
			o.ID, o.Name, o.Description, o.Reference, o.ReferenceID,
			o.Organization.ID, o.Organization.Code, o.Organization.Name,
			o.TargetOrganization, o.Customer, o.Remark,
			price.Amount(), price.Currency(), encodeTaxSummary(o.Taxes()), o.CreatedAt, o.ModifiedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return errors.Wrapf(order.ErrReferenceConflict, "reference %s", o.Reference)
			}
			return errors.Wrapf(err, "insert order %q", o.ID)
		}

		return insertItems(ctx, tx, o)
	})
}

// Get loads an order with its items and taxes.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, selectOrderSQL, id)
}

// GetByItem loads the order that holds the item.
func (r *OrderRepository) GetByItem(ctx context.Context, itemID string) (*order.Order, error) {
	return r.getOne(ctx, selectOrderByItemSQL, itemID)
}

func (r *OrderRepository) getOne(ctx context.Context, query, arg string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, errors.Wrap(err, "query order")
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrap(err, "scan order")
	}

	if err := loadItems(ctx, r.pool, []*order.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

// List returns the orders matching f ordered by creation time.
func (r *OrderRepository) List(ctx context.Context, f order.Filter) ([]*order.Order, error) {
	query, args := listQuery(f)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, errors.Wrap(err, "scan orders")
	}

	if err := loadItems(ctx, r.pool, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// Update loads the order with its row locked, applies fn, runs the pre-save
// hook and rewrites the order and its items, all in one transaction.
func (r *OrderRepository) Update(ctx context.Context, id string, fn func(o *order.Order) error) (*order.Order, error) {
	var updated *order.Order
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, selectOrderForUpdateSQL, id)
		if err != nil {
			return errors.Wrapf(err, "lock order %q", id)
		}
		o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return order.ErrNotFound
			}
			return errors.Wrapf(err, "scan order %q", id)
		}
		if err := loadItems(ctx, tx, []*order.Order{o}); err != nil {
			return err
		}

		if err := fn(o); err != nil {
			return err
		}
		if err := o.BeforeSave(r.now()); err != nil {
			return err
		}

		price := o.Price()
		_, err = tx.Exec(ctx, updateOrderSQL,
			o.ID, o.Name, o.Description, o.TargetOrganization, o.Customer, o.Remark,
			price.Amount(), price.Currency(), encodeTaxSummary(o.Taxes()), o.ModifiedAt,
		)
		if err != nil {
			return errors.Wrapf(err, "update order %q", o.ID)
		}

		if _, err := tx.Exec(ctx, deleteItemsSQL, o.ID); err != nil {
			return errors.Wrapf(err, "delete items of order %q", o.ID)
		}
		if err := insertItems(ctx, tx, o); err != nil {
			return err
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the order; items and taxes cascade.
func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteOrderSQL, id)
	if err != nil {
		return errors.Wrapf(err, "delete order %q", id)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// NextReferenceID increments the organization's sequence for year.
func (r *OrderRepository) NextReferenceID(ctx context.Context, orgCode string, year int) (int64, error) {
	var seq int64
	if err := r.pool.QueryRow(ctx, nextReferenceSQL, orgCode, year).Scan(&seq); err != nil {
		return 0, errors.Wrap(err, "next reference id")
	}
	return seq, nil
}

func insertItems(ctx context.Context, tx pgx.Tx, o *order.Order) error {
	batch := &pgx.Batch{}
	for pos, item := range o.Items() {
		batch.Queue(insertItemSQL,
			item.ID, o.ID, pos, item.Name, item.Description, item.Offer, item.Product,
			item.Quantity, item.Price, item.Currency, item.CreatedAt, item.ModifiedAt,
		)
		for taxPos, tax := range item.Taxes {
			batch.Queue(insertTaxSQL, item.ID, taxPos, tax.ID, tax.Name, tax.Percentage)
		}
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return errors.Wrapf(err, "insert items of order %q", o.ID)
	}
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// loadItems attaches items and taxes to orders with two queries.
func loadItems(ctx context.Context, q querier, orders []*order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[string]*order.Order, len(orders))
	orderIDs := make([]string, 0, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
		orderIDs = append(orderIDs, o.ID)
	}

	rows, err := q.Query(ctx, selectItemsSQL, orderIDs)
	if err != nil {
		return errors.Wrap(err, "query items")
	}
	type itemRow struct {
		orderID string
		item    *order.OrderItem
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (itemRow, error) {
		var (
			r    itemRow
			item order.OrderItem
		)
		err := row.Scan(&item.ID, &r.orderID, &item.Name, &item.Description, &item.Offer, &item.Product,
			&item.Quantity, &item.Price, &item.Currency, &item.CreatedAt, &item.ModifiedAt)
		r.item = &item
		return r, err
	})
	if err != nil {
		return errors.Wrap(err, "scan items")
	}
	if len(items) == 0 {
		return nil
	}

	itemByID := make(map[string]*order.OrderItem, len(items))
	itemIDs := make([]string, 0, len(items))
	for _, it := range items {
		itemByID[it.item.ID] = it.item
		itemIDs = append(itemIDs, it.item.ID)
	}

	rows, err = q.Query(ctx, selectTaxesSQL, itemIDs)
	if err != nil {
		return errors.Wrap(err, "query taxes")
	}
	var (
		itemID string
		tax    order.Tax
	)
	_, err = pgx.ForEachRow(rows, []any{&itemID, &tax.ID, &tax.Name, &tax.Percentage}, func() error {
		item := itemByID[itemID]
		item.Taxes = append(item.Taxes, tax)
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "scan taxes")
	}

	for _, it := range items {
		byID[it.orderID].AddItem(it.item)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (*order.Order, error) {
	var (
		o        = order.New()
		price    int64
		currency string
		taxes    []byte
	)
	err := row.Scan(
		&o.ID, &o.Name, &o.Description, &o.Reference, &o.ReferenceID,
		&o.Organization.ID, &o.Organization.Code, &o.Organization.Name,
		&o.TargetOrganization, &o.Customer, &o.Remark,
		&price, &currency, &taxes, &o.CreatedAt, &o.ModifiedAt,
	)
	if err != nil {
		return nil, err
	}

	summary, err := decodeTaxSummary(taxes, currency)
	if err != nil {
		return nil, err
	}
	o.LoadTotals(money.New(price, currency), summary)
	return o, nil
}

func listQuery(f order.Filter) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}

	if f.Reference != "" {
		add("reference = ?", f.Reference)
	}
	if f.TargetOrganization != "" {
		add("target_organization = ?", f.TargetOrganization)
	}
	if f.Customer != "" {
		add("customer = ?", f.Customer)
	}
	if f.Organization != "" {
		add("(organization_id = ? OR organization_code = ?)", f.Organization)
	}
	if !f.CreatedAfter.IsZero() {
		add("created_at >= ?", f.CreatedAfter)
	}
	if !f.CreatedBefore.IsZero() {
		add("created_at <= ?", f.CreatedBefore)
	}

	var b strings.Builder
	b.WriteString("SELECT " + orderColumns + " FROM orders")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	if f.NewestFirst {
		b.WriteString(" ORDER BY created_at DESC, reference_id DESC")
	} else {
		b.WriteString(" ORDER BY created_at ASC, reference_id ASC")
	}
	if f.Limit > 0 {
		args = append(args, f.Limit)
		b.WriteString(" LIMIT $" + strconv.Itoa(len(args)))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		b.WriteString(" OFFSET $" + strconv.Itoa(len(args)))
	}
	return b.String(), args
}
