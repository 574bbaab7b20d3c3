package devserver

import (
	"context"
	"errors"
	"fmt"

	"cartsync/internal/domain"
	"cartsync/internal/remote"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements RowStore on a MongoDB collection, one document
// per cart row. The canonical identity is stored alongside the row so
// Upsert can match combinations with a single query.
type MongoStore struct {
	collection *mongo.Collection
}

type rowDoc struct {
	ID              string            `bson:"_id"`
	UserID          string            `bson:"user_id"`
	Identity        string            `bson:"identity"`
	ProductID       string            `bson:"product_id"`
	VariantID       string            `bson:"variant_id,omitempty"`
	Quantity        int               `bson:"quantity"`
	SelectedOptions map[string]string `bson:"selected_options,omitempty"`
	Price           float64           `bson:"price"`
	DiscountedPrice float64           `bson:"discounted_price,omitempty"`
	Title           string            `bson:"title,omitempty"`
	Images          []string          `bson:"images,omitempty"`
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{collection: db.Collection("cart_rows")}
}

// CreateIndexes sets up the lookup indexes; call once at startup.
func (s *MongoStore) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "identity", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := s.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) List(ctx context.Context, userID string) ([]remote.Row, error) {
	cursor, err := s.collection.Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to list cart rows: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []rowDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode cart rows: %w", err)
	}

	rows := make([]remote.Row, 0, len(docs))
	for _, d := range docs {
		rows = append(rows, d.toRow())
	}
	return rows, nil
}

func (s *MongoStore) Upsert(ctx context.Context, userID string, row remote.Row) (remote.Row, error) {
	identity := domain.LineIdentity(row.ProductID, row.VariantID, row.SelectedOptions)
	filter := bson.M{"user_id": userID, "identity": identity}

	var existing rowDoc
	err := s.collection.FindOne(ctx, filter).Decode(&existing)
	if err == nil {
		update := bson.M{"$inc": bson.M{"quantity": row.Quantity}}
		if _, err := s.collection.UpdateOne(ctx, filter, update); err != nil {
			return remote.Row{}, fmt.Errorf("failed to increment cart row: %w", err)
		}
		existing.Quantity += row.Quantity
		return existing.toRow(), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return remote.Row{}, fmt.Errorf("failed to check existing cart row: %w", err)
	}

	doc := rowDoc{
		ID:              uuid.New().String(),
		UserID:          userID,
		Identity:        identity,
		ProductID:       row.ProductID,
		VariantID:       row.VariantID,
		Quantity:        row.Quantity,
		SelectedOptions: row.SelectedOptions,
		Price:           row.Price,
		DiscountedPrice: row.DiscountedPrice,
		Title:           row.Title,
		Images:          row.Images,
	}
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return remote.Row{}, fmt.Errorf("failed to insert cart row: %w", err)
	}
	return doc.toRow(), nil
}

func (s *MongoStore) UpdateQuantity(ctx context.Context, userID, rowID string, quantity int) (remote.Row, error) {
	filter := bson.M{"_id": rowID, "user_id": userID}
	update := bson.M{"$set": bson.M{"quantity": quantity}}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc rowDoc
	err := s.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return remote.Row{}, ErrRowNotFound
	}
	if err != nil {
		return remote.Row{}, fmt.Errorf("failed to update cart row: %w", err)
	}
	return doc.toRow(), nil
}

func (s *MongoStore) Delete(ctx context.Context, userID, rowID string) error {
	result, err := s.collection.DeleteOne(ctx, bson.M{"_id": rowID, "user_id": userID})
	if err != nil {
		return fmt.Errorf("failed to delete cart row: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrRowNotFound
	}
	return nil
}

func (s *MongoStore) DeleteAll(ctx context.Context, userID string) error {
	if _, err := s.collection.DeleteMany(ctx, bson.M{"user_id": userID}); err != nil {
		return fmt.Errorf("failed to clear cart rows: %w", err)
	}
	return nil
}

func (d rowDoc) toRow() remote.Row {
	return remote.Row{
		ID:              d.ID,
		ProductID:       d.ProductID,
		VariantID:       d.VariantID,
		Quantity:        d.Quantity,
		SelectedOptions: d.SelectedOptions,
		Price:           d.Price,
		DiscountedPrice: d.DiscountedPrice,
		Title:           d.Title,
		Images:          d.Images,
	}
}
