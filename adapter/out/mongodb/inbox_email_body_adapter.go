package mongodb

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"inbox_server/core/domain"
	"inbox_server/core/port/out"
)

const (
	collectionEmailBodies = "email_bodies"

	// Compression threshold - only compress if content is larger than this
	compressionThreshold = 1024 // 1KB
)

// EmailBodyAdapter implements out.EmailBodyRepository using MongoDB.
// Full text and HTML bodies live here, keyed on the email id, so the
// relational store only carries headers.
type EmailBodyAdapter struct {
	db         *mongo.Database
	collection *mongo.Collection
}

var _ out.EmailBodyRepository = (*EmailBodyAdapter)(nil)

// NewEmailBodyAdapter creates a new MongoDB email body adapter.
func NewEmailBodyAdapter(db *mongo.Database) *EmailBodyAdapter {
	collection := db.Collection(collectionEmailBodies)
	return &EmailBodyAdapter{
		db:         db,
		collection: collection,
	}
}

// EnsureIndexes creates necessary indexes for the collection.
func (a *EmailBodyAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "stored_at", Value: 1}},
		},
	}

	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// emailBodyDocument represents the MongoDB document structure.
type emailBodyDocument struct {
	EmailID string `bson:"email_id"`

	// Content (potentially compressed)
	Text         []byte `bson:"text"`
	HTML         []byte `bson:"html"`
	IsCompressed bool   `bson:"is_compressed"`

	OriginalSize   int64 `bson:"original_size"`
	CompressedSize int64 `bson:"compressed_size"`

	StoredAt time.Time `bson:"stored_at"`
}

// Upsert stores the body keyed on email id, replacing any previous
// document.
func (a *EmailBodyAdapter) Upsert(ctx context.Context, body *domain.EmailBody) error {
	doc, err := toDocument(body)
	if err != nil {
		return fmt.Errorf("failed to convert body to document: %w", err)
	}

	opts := options.Replace().SetUpsert(true)
	filter := bson.M{"email_id": doc.EmailID}

	_, err = a.collection.ReplaceOne(ctx, filter, doc, opts)
	if err != nil {
		return fmt.Errorf("failed to save email body: %w", err)
	}

	return nil
}

// Get retrieves a body, or (nil, nil) when absent.
func (a *EmailBodyAdapter) Get(ctx context.Context, emailID uuid.UUID) (*domain.EmailBody, error) {
	var doc emailBodyDocument
	filter := bson.M{"email_id": emailID.String()}

	err := a.collection.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get email body: %w", err)
	}

	return toEntity(&doc)
}

// GetByEmailIDs retrieves bodies for multiple emails in one query.
// Missing ids are simply absent from the result map.
func (a *EmailBodyAdapter) GetByEmailIDs(ctx context.Context, emailIDs []uuid.UUID) (map[uuid.UUID]*domain.EmailBody, error) {
	if len(emailIDs) == 0 {
		return make(map[uuid.UUID]*domain.EmailBody), nil
	}

	ids := make([]string, len(emailIDs))
	for i, id := range emailIDs {
		ids[i] = id.String()
	}
	filter := bson.M{"email_id": bson.M{"$in": ids}}

	cursor, err := a.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to bulk get email bodies: %w", err)
	}
	defer cursor.Close(ctx)

	result := make(map[uuid.UUID]*domain.EmailBody, len(emailIDs))
	for cursor.Next(ctx) {
		var doc emailBodyDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode email body: %w", err)
		}

		entity, err := toEntity(&doc)
		if err != nil {
			return nil, fmt.Errorf("failed to convert body %s: %w", doc.EmailID, err)
		}
		result[entity.EmailID] = entity
	}

	return result, nil
}

// Delete removes a body. Missing bodies are not an error.
func (a *EmailBodyAdapter) Delete(ctx context.Context, emailID uuid.UUID) error {
	filter := bson.M{"email_id": emailID.String()}

	_, err := a.collection.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to delete email body: %w", err)
	}

	return nil
}

func toDocument(body *domain.EmailBody) (*emailBodyDocument, error) {
	textBytes := []byte(body.TextBody)
	htmlBytes := []byte(body.HTMLBody)
	originalSize := int64(len(textBytes) + len(htmlBytes))

	isCompressed := false
	compressedSize := originalSize

	// Compress if content is large enough
	if originalSize > compressionThreshold {
		compressedText, err := compress(textBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to compress text: %w", err)
		}
		compressedHTML, err := compress(htmlBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to compress HTML: %w", err)
		}

		textBytes = compressedText
		htmlBytes = compressedHTML
		isCompressed = true
		compressedSize = int64(len(textBytes) + len(htmlBytes))
	}

	return &emailBodyDocument{
		EmailID:        body.EmailID.String(),
		Text:           textBytes,
		HTML:           htmlBytes,
		IsCompressed:   isCompressed,
		OriginalSize:   originalSize,
		CompressedSize: compressedSize,
		StoredAt:       time.Now().UTC(),
	}, nil
}

func toEntity(doc *emailBodyDocument) (*domain.EmailBody, error) {
	emailID, err := uuid.Parse(doc.EmailID)
	if err != nil {
		return nil, fmt.Errorf("invalid email id in document: %w", err)
	}

	textBytes := doc.Text
	htmlBytes := doc.HTML

	// Decompress if needed
	if doc.IsCompressed {
		textBytes, err = decompress(doc.Text)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress text: %w", err)
		}
		htmlBytes, err = decompress(doc.HTML)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress HTML: %w", err)
		}
	}

	return &domain.EmailBody{
		EmailID:  emailID,
		TextBody: string(textBytes),
		HTMLBody: string(htmlBytes),
	}, nil
}

func compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)

	if _, err := writer.Write(data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	return io.ReadAll(reader)
}
