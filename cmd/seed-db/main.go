package main

import (
	"bufio"
	"context"
	"flag"
	"io"
	"os"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/app"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/storage/postgres"
)

const (
	batchSize = 500
	bloomFPR  = 0.0001
)

type options struct {
	databaseURL  string
	productsFile string
	usersFile    string
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.productsFile, "products-file", "db/seed/products.json", "products JSON file, optionally .gz compressed")
	flag.StringVar(&opts.usersFile, "users-file", "db/seed/users.json", "users JSON file, optionally .gz compressed")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}

	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		if opts.databaseURL == "" {
			return errors.New("database URL is required: set --database-url or DATABASE_URL")
		}
		if err := run(ctx, lg, opts); err != nil {
			return errors.Wrap(err, "seed")
		}
		lg.Info("Seed completed")
		return nil
	})
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	products := postgres.NewProductRepository(pool)

	var (
		incoming []product.Product
		users    []auth.User
		existing []product.Product
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		if incoming, err = readFile(opts.productsFile, decodeProducts); err != nil {
			return errors.Wrap(err, "read products")
		}
		return nil
	})
	g.Go(func() (err error) {
		if users, err = readFile(opts.usersFile, decodeUsers); err != nil {
			return errors.Wrap(err, "read users")
		}
		return nil
	})
	g.Go(func() (err error) {
		if existing, err = products.List(gCtx); err != nil {
			return errors.Wrap(err, "list existing products")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	userRepo := postgres.NewUserRepository(pool)
	for _, u := range users {
		if err := userRepo.Upsert(ctx, u); err != nil {
			return err
		}
	}
	lg.Info("Upserted users", zap.Int("count", len(users)))

	fresh := dedupe(existing, incoming)
	lg.Info("Inserting products",
		zap.Int("read", len(incoming)),
		zap.Int("skipped", len(incoming)-len(fresh)),
	)
	for start := 0; start < len(fresh); start += batchSize {
		end := min(start+batchSize, len(fresh))
		if err := products.CreateBatch(ctx, fresh[start:end]); err != nil {
			return err
		}
		lg.Debug("Batch written", zap.Int("written", end), zap.Int("total", len(fresh)))
	}
	return nil
}

// dedupe drops incoming products whose name is already stored or repeated
// earlier in the input. Names are compared through a bloom filter, so a
// false positive may skip a genuinely new product.
func dedupe(existing, incoming []product.Product) []product.Product {
	filter := bloom.NewWithEstimates(uint(max(len(existing)+len(incoming), 1)), bloomFPR)
	for _, p := range existing {
		filter.AddString(p.Name)
	}
	out := make([]product.Product, 0, len(incoming))
	for _, p := range incoming {
		if filter.TestAndAddString(p.Name) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// readFile opens path and decodes it, transparently gunzipping .gz files.
func readFile[T any](path string, decode func(d *jx.Decoder) ([]T, error)) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(r)
		if err != nil {
			return nil, errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	out, err := decode(jx.Decode(r, 64*1024))
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return out, nil
}

func decodeProducts(d *jx.Decoder) ([]product.Product, error) {
	var out []product.Product
	err := d.Arr(func(d *jx.Decoder) error {
		var p product.Product
		if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			var err error
			switch string(key) {
			case "name":
				p.Name, err = d.Str()
			case "price":
				p.Price, err = decodePrice(d)
			case "quantity":
				p.Quantity, err = d.Int()
			case "ownerId":
				p.OwnerID, err = d.Str()
			case "image":
				p.Image, err = d.Str()
			default:
				err = d.Skip()
			}
			if err != nil {
				return errors.Wrapf(err, "field %q", key)
			}
			return nil
		}); err != nil {
			return err
		}
		if p.Name == "" {
			return errors.Errorf("product %d: name is required", len(out))
		}
		out = append(out, p)
		return nil
	})
	return out, err
}

func decodePrice(d *jx.Decoder) (decimal.Decimal, error) {
	if d.Next() == jx.String {
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	}
	n, err := d.Num()
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(n.String())
}

func decodeUsers(d *jx.Decoder) ([]auth.User, error) {
	var out []auth.User
	err := d.Arr(func(d *jx.Decoder) error {
		var u auth.User
		if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			var err error
			switch string(key) {
			case "id":
				u.ID, err = d.Str()
			case "userName":
				u.UserName, err = d.Str()
			case "email":
				u.Email, err = d.Str()
			default:
				err = d.Skip()
			}
			if err != nil {
				return errors.Wrapf(err, "field %q", key)
			}
			return nil
		}); err != nil {
			return err
		}
		if u.ID == "" {
			return errors.Errorf("user %d: id is required", len(out))
		}
		out = append(out, u)
		return nil
	})
	return out, err
}
