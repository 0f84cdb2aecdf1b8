// Package seed creates the e-commerce demo schema in a SQLite database and
// fills it with deterministic rows.
package seed

import (
	"context"
	"crypto/sha256"
	"database/sql"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/brianvoe/gofakeit/v7"
)

//go:embed schema.sql
var schemaSQL string

const (
	defaultUsers    = 100
	defaultProducts = 100
	defaultOrders   = 500
	defaultSeed     = 42

	reviewProbability = 0.3
)

var (
	roles      = []string{"admin", "customer", "support"}
	categories = []string{"Electronics", "Home", "Outdoors", "Books"}
	brands     = []string{"Acme", "Globex", "Initech", "Umbrella"}
	statuses   = []string{"pending", "paid", "shipped", "delivered", "cancelled"}
)

type Config struct {
	Logger *slog.Logger
	DB     *sql.DB

	Users    int
	Products int
	Orders   int
	// Seed makes the generated rows reproducible.
	Seed uint64
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.DB == nil {
		return errors.New("db is required")
	}
	if c.Users <= 0 {
		c.Users = defaultUsers
	}
	if c.Products <= 0 {
		c.Products = defaultProducts
	}
	if c.Orders < 0 {
		return errors.New("orders must not be negative")
	}
	if c.Orders == 0 {
		c.Orders = defaultOrders
	}
	if c.Seed == 0 {
		c.Seed = defaultSeed
	}
	return nil
}

// Summary counts the rows written per table.
type Summary struct {
	Users      int `json:"users"`
	Products   int `json:"products"`
	Orders     int `json:"orders"`
	OrderItems int `json:"order_items"`
	Reviews    int `json:"reviews"`
}

// Run creates the schema and inserts the demo data in one transaction. It
// fails if any of the demo tables already exist.
func Run(ctx context.Context, cfg Config) (*Summary, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate seed config: %w", err)
	}
	log := cfg.Logger

	tx, err := cfg.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := createSchema(ctx, tx); err != nil {
		return nil, err
	}

	s := &seeder{
		tx:   tx,
		fake: gofakeit.New(cfg.Seed),
	}
	summary := &Summary{}

	log.Info("seed: seeding lookup tables")
	if err := s.seedLookups(ctx); err != nil {
		return nil, err
	}

	log.Info("seed: seeding users", "count", cfg.Users)
	userIDs, err := s.seedUsers(ctx, cfg.Users)
	if err != nil {
		return nil, err
	}
	summary.Users = len(userIDs)

	log.Info("seed: seeding products", "count", cfg.Products)
	products, err := s.seedProducts(ctx, cfg.Products)
	if err != nil {
		return nil, err
	}
	summary.Products = len(products)

	log.Info("seed: seeding orders", "count", cfg.Orders)
	delivered, items, err := s.seedOrders(ctx, cfg.Orders, userIDs, products)
	if err != nil {
		return nil, err
	}
	summary.Orders = cfg.Orders
	summary.OrderItems = items

	log.Info("seed: seeding reviews", "deliveredOrders", len(delivered))
	summary.Reviews, err = s.seedReviews(ctx, delivered)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit seed data: %w", err)
	}
	log.Info("seed: completed", "users", summary.Users, "products", summary.Products, "orders", summary.Orders, "orderItems", summary.OrderItems, "reviews", summary.Reviews)
	return summary, nil
}

func createSchema(ctx context.Context, tx *sql.Tx) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

type seeder struct {
	tx   *sql.Tx
	fake *gofakeit.Faker
}

type product struct {
	id    int64
	price float64
}

type deliveredOrder struct {
	orderID    int64
	userID     int64
	productIDs []int64
}

func (s *seeder) insert(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *seeder) seedLookups(ctx context.Context) error {
	for table, names := range map[string][]string{
		"roles":      roles,
		"categories": categories,
		"brands":     brands,
	} {
		for _, name := range names {
			if _, err := s.insert(ctx, fmt.Sprintf("INSERT INTO %s (name) VALUES (?)", table), name); err != nil {
				return fmt.Errorf("failed to insert into %s: %w", table, err)
			}
		}
	}
	return nil
}

func (s *seeder) seedUsers(ctx context.Context, count int) ([]int64, error) {
	ids := make([]int64, 0, count)
	for i := range count {
		// The index suffix keeps usernames and emails unique.
		username := fmt.Sprintf("%s%d", strings.ToLower(s.fake.Username()), i+1)
		email := username + "@" + s.fake.DomainName()
		sum := sha256.Sum256([]byte(s.fake.Password(true, true, true, false, false, 16)))

		// role_id 2 is "customer"; the first user is an admin.
		roleID := 2
		if i == 0 {
			roleID = 1
		}
		id, err := s.insert(ctx,
			"INSERT INTO users (username, email, password_hash, role_id) VALUES (?, ?, ?, ?)",
			username, email, hex.EncodeToString(sum[:]), roleID)
		if err != nil {
			return nil, fmt.Errorf("failed to insert user: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *seeder) seedProducts(ctx context.Context, count int) ([]product, error) {
	products := make([]product, 0, count)
	for i := range count {
		price := math.Round(s.fake.Price(10, 2000)*100) / 100
		sku := fmt.Sprintf("%s-%03d", strings.ToUpper(s.fake.Numerify(s.fake.Lexify("??-####"))), i)

		id, err := s.insert(ctx,
			"INSERT INTO products (category_id, brand_id, title, description, price, sku) VALUES (?, ?, ?, ?, ?, ?)",
			s.fake.IntRange(1, len(categories)),
			s.fake.IntRange(1, len(brands)),
			s.fake.ProductName(),
			s.fake.Sentence(10),
			price,
			sku)
		if err != nil {
			return nil, fmt.Errorf("failed to insert product: %w", err)
		}
		products = append(products, product{id: id, price: price})
	}
	return products, nil
}

func (s *seeder) seedOrders(ctx context.Context, count int, userIDs []int64, products []product) ([]deliveredOrder, int, error) {
	var (
		delivered []deliveredOrder
		items     int
	)
	for range count {
		userID := userIDs[s.fake.IntRange(0, len(userIDs)-1)]
		status := s.fake.RandomString(statuses)

		orderID, err := s.insert(ctx,
			"INSERT INTO orders (user_id, total_amount, status) VALUES (?, 0, ?)",
			userID, status)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to insert order: %w", err)
		}

		var (
			total      float64
			productIDs []int64
		)
		for range s.fake.IntRange(1, 5) {
			p := products[s.fake.IntRange(0, len(products)-1)]
			qty := s.fake.IntRange(1, 3)
			total += p.price * float64(qty)
			if _, err := s.insert(ctx,
				"INSERT INTO order_items (order_id, product_id, quantity, unit_price) VALUES (?, ?, ?, ?)",
				orderID, p.id, qty, p.price); err != nil {
				return nil, 0, fmt.Errorf("failed to insert order item: %w", err)
			}
			productIDs = append(productIDs, p.id)
			items++
		}

		if _, err := s.tx.ExecContext(ctx,
			"UPDATE orders SET total_amount = ? WHERE order_id = ?",
			math.Round(total*100)/100, orderID); err != nil {
			return nil, 0, fmt.Errorf("failed to update order total: %w", err)
		}
		if status == "delivered" {
			delivered = append(delivered, deliveredOrder{orderID: orderID, userID: userID, productIDs: productIDs})
		}
	}
	return delivered, items, nil
}

// seedReviews writes verified reviews: only products from delivered orders,
// each reviewed with a fixed probability.
func (s *seeder) seedReviews(ctx context.Context, delivered []deliveredOrder) (int, error) {
	var count int
	for _, order := range delivered {
		for _, productID := range order.productIDs {
			if s.fake.Float64() >= reviewProbability {
				continue
			}
			if _, err := s.insert(ctx,
				"INSERT INTO reviews (product_id, user_id, rating, comment) VALUES (?, ?, ?, ?)",
				productID, order.userID, s.fake.IntRange(1, 5), s.fake.Sentence(8)); err != nil {
				return 0, fmt.Errorf("failed to insert review: %w", err)
			}
			count++
		}
	}
	return count, nil
}
