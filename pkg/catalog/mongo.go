package catalog

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo is a Catalog backed by a MongoDB mirror of the imaging index.
//
// Expected collections inside the configured database:
//   - series: one document per series, fields matching [SeriesRow] bson tags
//   - segmentations: {source_series_uid, study_uid, series_uid, algorithm}
//   - meta: a single document {_id: "catalog", version: "v20"}
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongo connects to the given MongoDB URI and verifies the connection.
func NewMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to catalog db: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping catalog db: %w", err)
	}
	return &Mongo{client: client, db: client.Database(database)}, nil
}

// Close disconnects from MongoDB.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// Version reads the catalog version from the meta collection.
func (m *Mongo) Version(ctx context.Context) (string, error) {
	var doc struct {
		Version string `bson:"version"`
	}
	err := m.db.Collection("meta").FindOne(ctx, bson.M{"_id": "catalog"}).Decode(&doc)
	if err != nil {
		return "", fmt.Errorf("read catalog version: %w", err)
	}
	return doc.Version, nil
}

// Query translates q into a MongoDB filter over the series collection.
// Results are sorted by series UID so seeded runs stay reproducible.
func (m *Mongo) Query(ctx context.Context, q Query) ([]SeriesRow, error) {
	filter := bson.M{}
	if len(q.Modalities) > 0 {
		filter["modality"] = bson.M{"$in": q.Modalities}
	}
	if q.MinInstances > 0 {
		filter["instance_count"] = bson.M{"$gte": q.MinInstances}
	}
	if len(q.ExcludeDescriptions) > 0 {
		var clauses []bson.M
		for _, p := range q.ExcludeDescriptions {
			clauses = append(clauses, bson.M{
				"description": bson.M{"$not": bson.M{"$regex": p}},
			})
		}
		filter["$and"] = clauses
	}
	if q.MinPixelSpacing > 0 || q.MaxPixelSpacing > 0 {
		spacing := bson.M{}
		if q.MinPixelSpacing > 0 {
			spacing["$gte"] = q.MinPixelSpacing
		}
		if q.MaxPixelSpacing > 0 {
			spacing["$lte"] = q.MaxPixelSpacing
		}
		filter["pixel_spacing"] = spacing
	}
	if len(q.ExcludeImageTypes) > 0 {
		filter["image_type"] = bson.M{"$nin": q.ExcludeImageTypes}
	}

	opts := options.Find().SetSort(bson.D{{Key: "series_uid", Value: 1}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cur, err := m.db.Collection("series").Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("query series: %w", err)
	}
	defer cur.Close(ctx)

	var rows []SeriesRow
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode series rows: %w", err)
	}
	return rows, nil
}

// SegmentationFor looks up the segmentation join collection.
func (m *Mongo) SegmentationFor(ctx context.Context, sourceSeriesUID string) (*SegmentationRef, error) {
	var ref SegmentationRef
	err := m.db.Collection("segmentations").
		FindOne(ctx, bson.M{"source_series_uid": sourceSeriesUID}).
		Decode(&ref)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNoSegmentation
	}
	if err != nil {
		return nil, fmt.Errorf("query segmentation join: %w", err)
	}
	return &ref, nil
}

// Ensure Mongo implements Catalog.
var _ Catalog = (*Mongo)(nil)
