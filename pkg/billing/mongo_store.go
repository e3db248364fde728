package billing

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// DefaultAccountsCollection is the collection holding account documents.
// Documents use camelCase fields and may carry either ObjectID or string ids.
const DefaultAccountsCollection = "users"

// MongoStore implements AccountStore and PaymentRecorder on a MongoDB collection.
// Payments are embedded in the account document and only ever $push-ed.
type MongoStore struct {
	coll *mongo.Collection
}

// NewMongoStore wraps the accounts collection of db.
func NewMongoStore(db *mongo.Database, collection string) *MongoStore {
	if db == nil {
		panic("billing: mongo database is required")
	}
	if collection == "" {
		collection = DefaultAccountsCollection
	}
	opts := options.Collection().SetBSONOptions(&options.BSONOptions{ObjectIDAsHexString: true})
	return &MongoStore{coll: db.Collection(collection, opts)}
}

// idFilter matches an account by its hex ObjectID or by a plain string id.
func idFilter(id string) bson.M {
	if oid, err := bson.ObjectIDFromHex(id); err == nil {
		return bson.M{"_id": bson.M{"$in": bson.A{oid, id}}}
	}
	return bson.M{"_id": id}
}

// ListAccounts implements AccountStore.
func (s *MongoStore) ListAccounts(ctx context.Context) ([]Account, error) {
	cur, err := s.coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find accounts: %w", err)
	}
	var out []Account
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode accounts: %w", err)
	}
	return out, nil
}

// GetAccount implements AccountStore.
func (s *MongoStore) GetAccount(ctx context.Context, id string) (*Account, error) {
	var a Account
	if err := s.coll.FindOne(ctx, idFilter(id)).Decode(&a); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
		}
		return nil, fmt.Errorf("find account %s: %w", id, err)
	}
	return &a, nil
}

// UpdateAccount implements AccountStore with a single pipeline $set of the provided fields.
func (s *MongoStore) UpdateAccount(ctx context.Context, id string, upd AccountUpdate) (*Account, error) {
	set := updateDocument(upd)
	if len(set) == 0 {
		return s.GetAccount(ctx, id)
	}

	var a Account
	err := s.coll.FindOneAndUpdate(ctx,
		idFilter(id),
		mongo.Pipeline{{{Key: "$set", Value: set}}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&a)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
		}
		return nil, fmt.Errorf("update account %s: %w", id, err)
	}
	return &a, nil
}

// AppendPayment implements PaymentRecorder. Re-appending a known payment id is a no-op.
func (s *MongoStore) AppendPayment(ctx context.Context, accountID string, p Payment) error {
	filter := idFilter(accountID)
	filter["payments.paymentId"] = bson.M{"$ne": p.PaymentID}
	res, err := s.coll.UpdateOne(ctx, filter, bson.M{"$push": bson.M{"payments": p}})
	if err != nil {
		return fmt.Errorf("append payment to account %s: %w", accountID, err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	n, err := s.coll.CountDocuments(ctx, idFilter(accountID))
	if err != nil {
		return fmt.Errorf("check account %s: %w", accountID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	return nil
}

// updateDocument maps the non-nil fields of upd to a pipeline $set stage.
// Values are wrapped in $literal so strings are never read as field paths.
// The instrument is merged onto an empty document so a null paymentInstrument
// does not fail the update.
func updateDocument(upd AccountUpdate) bson.D {
	var set bson.D
	add := func(field string, v any) {
		set = append(set, bson.E{Key: field, Value: bson.M{"$literal": v}})
	}
	if upd.SubscriptionStatus != nil {
		add("subscriptionStatus", *upd.SubscriptionStatus)
	}
	if upd.SubscriptionExpiry != nil {
		add("subscriptionExpiry", upd.SubscriptionExpiry.UTC())
	}
	if upd.SubscriptionID != nil {
		add("subscriptionId", *upd.SubscriptionID)
	}
	if upd.SubscriptionName != nil {
		add("subscriptionName", *upd.SubscriptionName)
	}
	if upd.SubscriptionPrice != nil {
		add("subscriptionPrice", *upd.SubscriptionPrice)
	}
	if upd.SubscriptionDuration != nil {
		add("subscriptionDuration", *upd.SubscriptionDuration)
	}
	if upd.AutoRenewalEnabled != nil {
		add("autoRenewalEnabled", *upd.AutoRenewalEnabled)
	}

	var inst bson.D
	if upd.CustomerID != nil {
		inst = append(inst, bson.E{Key: "customerId", Value: bson.M{"$literal": *upd.CustomerID}})
	}
	if upd.PaymentMethodID != nil {
		inst = append(inst, bson.E{Key: "paymentMethodId", Value: bson.M{"$literal": *upd.PaymentMethodID}})
	}
	if len(inst) > 0 {
		set = append(set, bson.E{Key: "paymentInstrument", Value: bson.M{
			"$mergeObjects": bson.A{bson.M{"$ifNull": bson.A{"$paymentInstrument", bson.D{}}}, inst},
		}})
	}
	return set
}
