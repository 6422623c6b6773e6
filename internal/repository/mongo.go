package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/womens-health-report-analyzer/internal/domain"
)

const (
	defaultMongoDatabase = "womens_health"
	reportsCollection    = "reports"
	conditionsCollection = "user_conditions"
)

// MongoStore keeps each report as a document and each user's condition set
// as a single document keyed by user id
type MongoStore struct {
	client     *mongo.Client
	reports    *mongo.Collection
	conditions *mongo.Collection
	logger     *logrus.Logger
}

type reportDocument struct {
	ID         string                `bson:"_id"`
	UserID     string                `bson:"user_id"`
	UploadDate time.Time             `bson:"upload_date"`
	Report     domain.ReportAnalysis `bson:"report"`
}

type conditionsDocument struct {
	UserID     string   `bson:"_id"`
	Conditions []string `bson:"conditions"`
}

// NewMongoStore connects, pings and ensures the listing index exists
func NewMongoStore(ctx context.Context, uri, database string, logger *logrus.Logger) (*MongoStore, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongo uri is required")
	}
	if database == "" {
		database = defaultMongoDatabase
	}
	if logger == nil {
		logger = logrus.New()
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(database)
	store := &MongoStore{
		client:     client,
		reports:    db.Collection(reportsCollection),
		conditions: db.Collection(conditionsCollection),
		logger:     logger,
	}

	_, err = store.reports.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "upload_date", Value: -1}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create report index: %w", err)
	}

	logger.WithField("database", database).Info("MongoDB report store ready")
	return store, nil
}

// Create inserts a new report
func (s *MongoStore) Create(ctx context.Context, report *domain.ReportAnalysis) error {
	if _, err := encodeReport(report); err != nil {
		return err
	}

	doc := reportDocument{
		ID:         report.ID,
		UserID:     report.UserID,
		UploadDate: report.UploadDate,
		Report:     *report,
	}
	if _, err := s.reports.InsertOne(ctx, doc); err != nil {
		s.logger.WithFields(logrus.Fields{
			"report_id": report.ID,
			"user_id":   report.UserID,
			"error":     err,
		}).Error("Failed to insert report")
		return persistenceError("inserting report", err)
	}
	return nil
}

// Get returns a report owned by the user
func (s *MongoStore) Get(ctx context.Context, userID, reportID string) (*domain.ReportAnalysis, error) {
	var doc reportDocument
	err := s.reports.FindOne(ctx, bson.M{"_id": reportID, "user_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound(reportID)
	}
	if err != nil {
		return nil, persistenceError("reading report", err)
	}
	return &doc.Report, nil
}

// FindByUser lists the user's reports newest first
func (s *MongoStore) FindByUser(ctx context.Context, userID string, limit int) ([]*domain.ReportAnalysis, error) {
	opts := options.Find().SetSort(bson.D{{Key: "upload_date", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.reports.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, persistenceError("listing reports", err)
	}
	defer cursor.Close(ctx)

	reports := make([]*domain.ReportAnalysis, 0)
	for cursor.Next(ctx) {
		var doc reportDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, persistenceError("decoding report", err)
		}
		report := doc.Report
		reports = append(reports, &report)
	}
	if err := cursor.Err(); err != nil {
		return nil, persistenceError("iterating reports", err)
	}
	return reports, nil
}

// Delete removes a report owned by the user
func (s *MongoStore) Delete(ctx context.Context, userID, reportID string) error {
	result, err := s.reports.DeleteOne(ctx, bson.M{"_id": reportID, "user_id": userID})
	if err != nil {
		return persistenceError("deleting report", err)
	}
	if result.DeletedCount == 0 {
		return notFound(reportID)
	}
	return nil
}

// MergeConditions adds conditions to the user's set with $addToSet
func (s *MongoStore) MergeConditions(ctx context.Context, userID string, conditions []string) error {
	conditions = cleanConditions(conditions)
	if len(conditions) == 0 {
		return nil
	}

	update := bson.M{"$addToSet": bson.M{"conditions": bson.M{"$each": conditions}}}
	_, err := s.conditions.UpdateOne(ctx, bson.M{"_id": userID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return persistenceError("merging conditions", err)
	}
	return nil
}

// Conditions returns the user's condition set
func (s *MongoStore) Conditions(ctx context.Context, userID string) ([]string, error) {
	var doc conditionsDocument
	err := s.conditions.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return []string{}, nil
	}
	if err != nil {
		return nil, persistenceError("reading conditions", err)
	}
	if doc.Conditions == nil {
		return []string{}, nil
	}
	return doc.Conditions, nil
}

// Ping checks the store is reachable
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
