package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"pagebuilder/internal/domain"
)

// mongoPage is the stored shape of a page. The document travels as JSON
// text so property values keep their JSON types.
type mongoPage struct {
	ID            string     `bson:"_id"`
	SiteID        string     `bson:"siteId"`
	PageID        string     `bson:"pageId"`
	Title         string     `bson:"title"`
	Slug          string     `bson:"slug"`
	Environment   string     `bson:"environment"`
	DocumentJSON  string     `bson:"documentJson"`
	PublishedJSON string     `bson:"publishedJson,omitempty"`
	UpdatedAt     time.Time  `bson:"updatedAt"`
	PublishedAt   *time.Time `bson:"publishedAt,omitempty"`
}

// MongoPageStore persists pages in a MongoDB database.
type MongoPageStore struct {
	client    *mongo.Client
	pages     *mongo.Collection
	revisions *mongo.Collection
	history   *mongo.Collection
}

// OpenMongo connects to uri and uses database dbName.
func OpenMongo(ctx context.Context, uri, dbName string) (*MongoPageStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	db := client.Database(dbName)
	return &MongoPageStore{
		client:    client,
		pages:     db.Collection("pages"),
		revisions: db.Collection("page_revisions"),
		history:   db.Collection("history_entries"),
	}, nil
}

// Close disconnects the client.
func (s *MongoPageStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func mongoKey(siteID, pageID string) string { return siteID + "/" + pageID }

// Load returns the stored document and page metadata.
func (s *MongoPageStore) Load(ctx context.Context, siteID, pageID string) (*domain.Document, domain.PageMeta, error) {
	var p mongoPage
	err := s.pages.FindOne(ctx, bson.M{"_id": mongoKey(siteID, pageID)}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.PageMeta{SiteID: siteID, PageID: pageID}, fmt.Errorf("page %s/%s: %w", siteID, pageID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, domain.PageMeta{}, fmt.Errorf("load page: %w", err)
	}
	doc, err := decodeDocument(p.DocumentJSON)
	if err != nil {
		return nil, domain.PageMeta{}, err
	}
	return doc, p.meta(), nil
}

// Save stores doc as the page's current content and appends a revision.
func (s *MongoPageStore) Save(ctx context.Context, siteID, pageID string, doc *domain.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	now := time.Now().UTC()
	_, err = s.pages.UpdateOne(ctx,
		bson.M{"_id": mongoKey(siteID, pageID)},
		bson.M{
			"$set": bson.M{"documentJson": string(data), "updatedAt": now},
			"$setOnInsert": bson.M{
				"siteId": siteID, "pageId": pageID, "title": "", "slug": "", "environment": "draft",
			},
		},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("save page: %w", err)
	}
	_, err = s.revisions.InsertOne(ctx, bson.M{
		"_id": uuid.NewString(), "siteId": siteID, "pageId": pageID,
		"documentJson": string(data), "createdAt": now,
	})
	if err != nil {
		return fmt.Errorf("insert revision: %w", err)
	}
	return nil
}

// Publish marks the current content as published.
func (s *MongoPageStore) Publish(ctx context.Context, siteID, pageID string) error {
	doc, meta, err := s.Load(ctx, siteID, pageID)
	if err != nil {
		return err
	}
	if doc.IsEmpty() || meta.Title == "" || meta.Slug == "" {
		return fmt.Errorf("publish page %s/%s: %w", siteID, pageID, domain.ErrPageIncomplete)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	_, err = s.pages.UpdateOne(ctx,
		bson.M{"_id": mongoKey(siteID, pageID)},
		bson.M{"$set": bson.M{"publishedJson": string(data), "publishedAt": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("publish page: %w", err)
	}
	return nil
}

// ListPages returns the site's pages ordered by slug.
func (s *MongoPageStore) ListPages(ctx context.Context, siteID string) ([]domain.PageMeta, error) {
	cur, err := s.pages.Find(ctx, bson.M{"siteId": siteID},
		options.Find().SetSort(bson.D{{Key: "slug", Value: 1}, {Key: "pageId", Value: 1}}).
			SetProjection(bson.M{"documentJson": 0, "publishedJson": 0}))
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer cur.Close(ctx)

	var pages []domain.PageMeta
	for cur.Next(ctx) {
		var p mongoPage
		if err := cur.Decode(&p); err != nil {
			return nil, fmt.Errorf("decode page: %w", err)
		}
		pages = append(pages, p.meta())
	}
	return pages, cur.Err()
}

// CreatePage inserts a new page with its initial document.
func (s *MongoPageStore) CreatePage(ctx context.Context, meta domain.PageMeta, doc *domain.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	env := meta.Environment
	if env == "" {
		env = "draft"
	}
	_, err = s.pages.InsertOne(ctx, mongoPage{
		ID:           mongoKey(meta.SiteID, meta.PageID),
		SiteID:       meta.SiteID,
		PageID:       meta.PageID,
		Title:        meta.Title,
		Slug:         meta.Slug,
		Environment:  env,
		DocumentJSON: string(data),
		UpdatedAt:    time.Now().UTC(),
	})
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("create page %s/%s: %w", meta.SiteID, meta.PageID, domain.ErrDuplicateID)
	}
	if err != nil {
		return fmt.Errorf("create page: %w", err)
	}
	return nil
}

func (p mongoPage) meta() domain.PageMeta {
	return domain.PageMeta{
		SiteID:      p.SiteID,
		PageID:      p.PageID,
		Title:       p.Title,
		Slug:        p.Slug,
		Environment: p.Environment,
		UpdatedAt:   p.UpdatedAt,
		PublishedAt: p.PublishedAt,
	}
}
