package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/noah-isme/backend-merch/internal/catalog"
	"github.com/noah-isme/backend-merch/internal/order"
	"github.com/noah-isme/backend-merch/internal/pricing"
)

// Collection names used by the Mongo adapters.
const (
	ProductsCollection = "products"
	CombosCollection   = "combos"
	OrdersCollection   = "orders"
)

// MongoCatalog serves products and combos from MongoDB.
type MongoCatalog struct {
	DB *mongo.Database
}

// FindMany implements catalog.Lookup.
func (r MongoCatalog) FindMany(ctx context.Context, ids []string, availableOnly bool) ([]catalog.Product, error) {
	ids = catalog.Distinct(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	filter := bson.M{"_id": bson.M{"$in": ids}}
	if availableOnly {
		filter["available"] = true
	}
	cur, err := r.DB.Collection(ProductsCollection).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}
	var out []catalog.Product
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	return out, nil
}

// ActiveCombos implements catalog.ComboSource.
func (r MongoCatalog) ActiveCombos(ctx context.Context) ([]catalog.ComboDefinition, error) {
	opts := options.Find().SetSort(bson.D{{Key: "position", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.DB.Collection(CombosCollection).Find(ctx, bson.M{"active": true}, opts)
	if err != nil {
		return nil, fmt.Errorf("find combos: %w", err)
	}
	var out []catalog.ComboDefinition
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode combos: %w", err)
	}
	return out, nil
}

// UpsertProduct inserts or replaces a product.
func (r MongoCatalog) UpsertProduct(ctx context.Context, p catalog.Product) error {
	_, err := r.DB.Collection(ProductsCollection).ReplaceOne(ctx, bson.M{"_id": p.ID}, p, options.Replace().SetUpsert(true))
	return err
}

// UpsertCombo inserts or replaces a combo definition.
func (r MongoCatalog) UpsertCombo(ctx context.Context, d catalog.ComboDefinition) error {
	_, err := r.DB.Collection(CombosCollection).ReplaceOne(ctx, bson.M{"_id": d.ID}, d, options.Replace().SetUpsert(true))
	return err
}

// MongoOrders persists orders in MongoDB. The unique orderCode index makes
// Insert the code claim.
type MongoOrders struct {
	DB *mongo.Database
}

// comboInfoDoc mirrors the tagged ComboInfo variant. Client-supplied combo
// and breakdown JSON is kept as an opaque string so keys such as "$date"
// are never interpreted by the driver.
type comboInfoDoc struct {
	Mode          string `bson:"mode"`
	ComboID       string `bson:"comboId,omitempty"`
	ComboName     string `bson:"comboName,omitempty"`
	Message       string `bson:"message,omitempty"`
	Savings       int64  `bson:"savings"`
	OriginalTotal int64  `bson:"originalTotal,omitempty"`
	FinalTotal    int64  `bson:"finalTotal,omitempty"`
	Combos        string `bson:"combos,omitempty"`
	Breakdown     string `bson:"breakdown,omitempty"`
}

type orderDoc struct {
	ID              string              `bson:"_id"`
	OrderCode       string              `bson:"orderCode"`
	Customer        order.Customer      `bson:",inline"`
	Items           []pricing.Line      `bson:"items"`
	TotalAmount     int64               `bson:"totalAmount"`
	PricingMode     string              `bson:"pricingMode"`
	ComboInfo       *comboInfoDoc       `bson:"comboInfo,omitempty"`
	Status          string              `bson:"status"`
	LastUpdatedBy   string              `bson:"lastUpdatedBy"`
	StatusHistory   []order.StatusEntry `bson:"statusHistory"`
	CreatedAt       time.Time           `bson:"createdAt"`
	StatusUpdatedAt time.Time           `bson:"statusUpdatedAt"`
}

// EnsureIndexes creates the unique order code index.
func (r MongoOrders) EnsureIndexes(ctx context.Context) error {
	_, err := r.DB.Collection(OrdersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "orderCode", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("orderCode_unique"),
		},
		{
			Keys:    bson.D{{Key: "studentId", Value: 1}},
			Options: options.Index().SetName("studentId"),
		},
	})
	return err
}

// Insert implements order.Store.
func (r MongoOrders) Insert(ctx context.Context, o order.Order) error {
	doc, err := toOrderDoc(o)
	if err != nil {
		return err
	}
	if _, err := r.DB.Collection(OrdersCollection).InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateCode
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// FindByCode implements order.Store.
func (r MongoOrders) FindByCode(ctx context.Context, code string) (order.Order, error) {
	var doc orderDoc
	err := r.DB.Collection(OrdersCollection).FindOne(ctx, bson.M{"orderCode": code}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return order.Order{}, ErrNotFound
	}
	if err != nil {
		return order.Order{}, fmt.Errorf("find order: %w", err)
	}
	return fromOrderDoc(doc)
}

func toOrderDoc(o order.Order) (orderDoc, error) {
	doc := orderDoc{
		ID:              o.ID.String(),
		OrderCode:       o.OrderCode,
		Customer:        o.Customer,
		Items:           o.Lines,
		TotalAmount:     o.TotalAmount,
		PricingMode:     string(o.PricingMode),
		Status:          o.Status,
		LastUpdatedBy:   o.LastUpdatedBy,
		StatusHistory:   o.StatusHistory,
		CreatedAt:       o.CreatedAt,
		StatusUpdatedAt: o.StatusUpdatedAt,
	}
	if o.ComboInfo != nil {
		info, err := comboInfoToDoc(o.ComboInfo)
		if err != nil {
			return orderDoc{}, err
		}
		doc.ComboInfo = info
	}
	return doc, nil
}

func fromOrderDoc(doc orderDoc) (order.Order, error) {
	o := order.Order{
		OrderCode:       doc.OrderCode,
		Customer:        doc.Customer,
		Lines:           doc.Items,
		TotalAmount:     doc.TotalAmount,
		PricingMode:     pricing.Mode(doc.PricingMode),
		Status:          doc.Status,
		LastUpdatedBy:   doc.LastUpdatedBy,
		StatusHistory:   doc.StatusHistory,
		CreatedAt:       doc.CreatedAt.UTC(),
		StatusUpdatedAt: doc.StatusUpdatedAt.UTC(),
	}
	if id, err := uuid.Parse(doc.ID); err == nil {
		o.ID = id
	}
	if doc.ComboInfo != nil {
		info, err := comboInfoFromDoc(*doc.ComboInfo)
		if err != nil {
			return order.Order{}, err
		}
		o.ComboInfo = info
	}
	return o, nil
}

func comboInfoToDoc(info *pricing.ComboInfo) (*comboInfoDoc, error) {
	switch info.Mode {
	case pricing.ComboSingle:
		if info.Single == nil {
			return nil, errors.New("encode combo info: single variant missing")
		}
		return &comboInfoDoc{
			Mode:      string(info.Mode),
			ComboID:   info.Single.ComboID,
			ComboName: info.Single.ComboName,
			Message:   info.Single.Message,
			Savings:   info.Single.Savings,
		}, nil
	case pricing.ComboAggregate:
		a := info.Aggregate
		if a == nil {
			return nil, errors.New("encode combo info: aggregate variant missing")
		}
		return &comboInfoDoc{
			Mode:          string(info.Mode),
			Savings:       a.Savings,
			OriginalTotal: a.OriginalTotal,
			FinalTotal:    a.FinalTotal,
			Combos:        string(a.Combos),
			Breakdown:     string(a.Breakdown),
		}, nil
	default:
		return nil, fmt.Errorf("encode combo info: unknown mode %q", info.Mode)
	}
}

func comboInfoFromDoc(doc comboInfoDoc) (*pricing.ComboInfo, error) {
	switch pricing.ComboMode(doc.Mode) {
	case pricing.ComboSingle:
		return pricing.NewSingle(pricing.SingleCombo{
			ComboID:   doc.ComboID,
			ComboName: doc.ComboName,
			Savings:   doc.Savings,
			Message:   doc.Message,
		}), nil
	case pricing.ComboAggregate:
		return &pricing.ComboInfo{Mode: pricing.ComboAggregate, Aggregate: &pricing.AggregateSavings{
			Savings:       doc.Savings,
			OriginalTotal: doc.OriginalTotal,
			FinalTotal:    doc.FinalTotal,
			Combos:        rawJSON(doc.Combos),
			Breakdown:     rawJSON(doc.Breakdown),
		}}, nil
	default:
		return nil, fmt.Errorf("decode combo info: unknown mode %q", doc.Mode)
	}
}

func rawJSON(s string) json.RawMessage {
	if s == "" {
		return nil
	}
	return json.RawMessage(s)
}
