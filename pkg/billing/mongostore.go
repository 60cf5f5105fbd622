package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// MongoStore is the MongoDB-backed Store. The user ID is the document _id,
// which gives the fresh-record insert its uniqueness guarantee; updates carry
// the expected version in the filter so a lost race matches zero documents.
type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection("subscription_records")}
}

type mongoRecord struct {
	UserID                  string     `bson:"_id"`
	Tier                    string     `bson:"tier"`
	PeriodEnd               *time.Time `bson:"period_end,omitempty"`
	ProviderCustomerRef     string     `bson:"provider_customer_ref"`
	ProviderSubscriptionRef string     `bson:"provider_subscription_ref"`
	Version                 int64      `bson:"version"`
	UpdatedAt               time.Time  `bson:"updated_at"`
}

// EnsureIndexes creates the subscription-ref lookup index. Called once at
// startup.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "provider_subscription_ref", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create subscription ref index: %w", err)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, userID uuid.UUID) (*Record, error) {
	var doc mongoRecord
	err := s.coll.FindOne(ctx, bson.M{"_id": userID.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read subscription record: %w", err)
	}
	return doc.toRecord()
}

func (s *MongoStore) FindBySubscriptionRef(ctx context.Context, ref string) (*Record, error) {
	if ref == "" {
		return nil, ErrRecordNotFound
	}

	var doc mongoRecord
	err := s.coll.FindOne(ctx, bson.M{"provider_subscription_ref": ref}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find subscription record by ref: %w", err)
	}
	return doc.toRecord()
}

func (s *MongoStore) Save(ctx context.Context, rec *Record) error {
	now := time.Now().UTC()

	if rec.Version == 0 {
		doc := mongoRecord{
			UserID:                  rec.UserID.String(),
			Tier:                    string(rec.Tier),
			PeriodEnd:               rec.PeriodEnd,
			ProviderCustomerRef:     rec.ProviderCustomerRef,
			ProviderSubscriptionRef: rec.ProviderSubscriptionRef,
			Version:                 1,
			UpdatedAt:               now,
		}
		if _, err := s.coll.InsertOne(ctx, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return ErrVersionConflict
			}
			return fmt.Errorf("insert subscription record: %w", err)
		}
		rec.Version = 1
		rec.UpdatedAt = now
		return nil
	}

	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": rec.UserID.String(), "version": rec.Version},
		bson.M{"$set": bson.M{
			"tier":                      string(rec.Tier),
			"period_end":                rec.PeriodEnd,
			"provider_customer_ref":     rec.ProviderCustomerRef,
			"provider_subscription_ref": rec.ProviderSubscriptionRef,
			"version":                   rec.Version + 1,
			"updated_at":                now,
		}})
	if err != nil {
		return fmt.Errorf("update subscription record: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrVersionConflict
	}
	rec.Version++
	rec.UpdatedAt = now
	return nil
}

func (d mongoRecord) toRecord() (*Record, error) {
	userID, err := uuid.Parse(d.UserID)
	if err != nil {
		return nil, fmt.Errorf("corrupt subscription record ID %q: %w", d.UserID, err)
	}
	return &Record{
		UserID:                  userID,
		Tier:                    Tier(d.Tier),
		PeriodEnd:               d.PeriodEnd,
		ProviderCustomerRef:     d.ProviderCustomerRef,
		ProviderSubscriptionRef: d.ProviderSubscriptionRef,
		Version:                 d.Version,
		UpdatedAt:               d.UpdatedAt,
	}, nil
}

var _ Store = (*MongoStore)(nil)
