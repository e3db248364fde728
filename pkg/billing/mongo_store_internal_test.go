package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestUpdateDocument(t *testing.T) {
	t.Parallel()

	t.Run("empty update", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, updateDocument(AccountUpdate{}))
	})

	t.Run("subscription fields use camelCase paths", func(t *testing.T) {
		t.Parallel()

		exp := time.Date(2025, 7, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))
		set := updateDocument(AccountUpdate{
			SubscriptionStatus:   ptr(StatusActive),
			SubscriptionExpiry:   &exp,
			SubscriptionID:       ptr("basic"),
			SubscriptionName:     ptr("Basic"),
			SubscriptionPrice:    ptr(int64(5000)),
			SubscriptionDuration: ptr(30),
			AutoRenewalEnabled:   ptr(true),
		})

		m := make(map[string]any, len(set))
		for _, e := range set {
			m[e.Key] = e.Value
		}
		assert.Len(t, m, 7)
		assert.Equal(t, bson.M{"$literal": StatusActive}, m["subscriptionStatus"])
		assert.Equal(t, bson.M{"$literal": exp.UTC()}, m["subscriptionExpiry"])
		assert.Equal(t, bson.M{"$literal": "basic"}, m["subscriptionId"])
		assert.Equal(t, bson.M{"$literal": "Basic"}, m["subscriptionName"])
		assert.Equal(t, bson.M{"$literal": int64(5000)}, m["subscriptionPrice"])
		assert.Equal(t, bson.M{"$literal": 30}, m["subscriptionDuration"])
		assert.Equal(t, bson.M{"$literal": true}, m["autoRenewalEnabled"])
	})

	t.Run("instrument merges onto a possibly null subdocument", func(t *testing.T) {
		t.Parallel()

		set := updateDocument(AccountUpdate{
			CustomerID:      ptr("cus_1"),
			PaymentMethodID: ptr("$pm_1"),
		})
		require.Len(t, set, 1)
		assert.Equal(t, "paymentInstrument", set[0].Key)

		merge, ok := set[0].Value.(bson.M)["$mergeObjects"].(bson.A)
		require.True(t, ok)
		require.Len(t, merge, 2)
		assert.Equal(t, bson.M{"$ifNull": bson.A{"$paymentInstrument", bson.D{}}}, merge[0])
		assert.Equal(t, bson.D{
			{Key: "customerId", Value: bson.M{"$literal": "cus_1"}},
			{Key: "paymentMethodId", Value: bson.M{"$literal": "$pm_1"}},
		}, merge[1])
	})

	t.Run("only the provided instrument half is written", func(t *testing.T) {
		t.Parallel()

		set := updateDocument(AccountUpdate{PaymentMethodID: ptr("pm_2")})
		require.Len(t, set, 1)
		merge := set[0].Value.(bson.M)["$mergeObjects"].(bson.A)
		assert.Equal(t, bson.D{{Key: "paymentMethodId", Value: bson.M{"$literal": "pm_2"}}}, merge[1])
	})
}

func TestIDFilter(t *testing.T) {
	t.Parallel()

	t.Run("hex id matches ObjectID or string", func(t *testing.T) {
		t.Parallel()

		hex := "665f1c2a9b1e8a0012345678"
		oid, err := bson.ObjectIDFromHex(hex)
		require.NoError(t, err)
		assert.Equal(t, bson.M{"_id": bson.M{"$in": bson.A{oid, hex}}}, idFilter(hex))
	})

	t.Run("non-hex id matches string only", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, bson.M{"_id": "seller-1"}, idFilter("seller-1"))
	})
}

func TestAccountBSONFieldNames(t *testing.T) {
	t.Parallel()

	exp := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	raw, err := bson.Marshal(Account{
		ID:                 "seller-1",
		Role:               RoleSeller,
		SubscriptionExpiry: &exp,
		AutoRenewalEnabled: true,
		PaymentInstrument:  PaymentInstrument{CustomerID: "cus_1", PaymentMethodID: "pm_1"},
		Payments:           []Payment{{PaymentID: "pi_1", Amount: 1000, Status: PaymentSucceeded}},
	})
	require.NoError(t, err)

	doc := bson.Raw(raw)
	for _, path := range [][]string{
		{"subscriptionExpiry"},
		{"autoRenewalEnabled"},
		{"paymentInstrument", "customerId"},
		{"paymentInstrument", "paymentMethodId"},
	} {
		_, err := doc.LookupErr(path...)
		assert.NoError(t, err, path)
	}
	pid, err := doc.LookupErr("payments", "0", "paymentId")
	require.NoError(t, err)
	assert.Equal(t, "pi_1", pid.StringValue())
}
