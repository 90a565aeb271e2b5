// Package mongometadata is an optional secondary index over transaction
// metadata: Postgres remains the system of record for every balance and
// hash-chain invariant, this package only mirrors the opaque `metadata`
// JSON blob into Mongo so operators can run ad-hoc queries
// (`db.transactions.find({"metadata.orderId": ...})`) without scanning
// Postgres JSONB. Grounded on the teacher's pattern of a narrow adapter
// struct per external system (postgres/mongo/redis/rabbitmq each get
// their own Connection type with a lazy Connect/GetX accessor).
package mongometadata

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/summa-ledger/summa/internal/mlog"
)

// Connection is a singleton Mongo client holder.
type Connection struct {
	URI        string
	Database   string
	Collection string
	client     *mongo.Client
	Connected  bool
	Logger     mlog.Logger
}

// Connect dials Mongo and pings it.
func (c *Connection) Connect(ctx context.Context) error {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(c.URI))
	if err != nil {
		return err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return err
	}
	c.client = client
	c.Connected = true
	return nil
}

func (c *Connection) collection(ctx context.Context) (*mongo.Collection, error) {
	if !c.Connected {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}
	return c.client.Database(c.Database).Collection(c.Collection), nil
}

// TransactionMetadata is the document mirrored per posted transaction.
type TransactionMetadata struct {
	LedgerID      string         `bson:"ledgerId"`
	TransactionID string         `bson:"transactionId"`
	Reference     string         `bson:"reference"`
	Metadata      map[string]any `bson:"metadata"`
}

// Index mirrors one transaction's metadata, upserting by transactionId so
// a retried publish never creates a duplicate document.
func (c *Connection) Index(ctx context.Context, doc TransactionMetadata) error {
	coll, err := c.collection(ctx)
	if err != nil {
		return err
	}
	_, err = coll.UpdateOne(ctx,
		bson.M{"transactionId": doc.TransactionID},
		bson.M{"$set": doc},
		options.Update().SetUpsert(true),
	)
	return err
}

// FindByMetadataField queries the mirror by one metadata field's value,
// e.g. FindByMetadataField(ctx, ledgerID, "orderId", "ord_123").
func (c *Connection) FindByMetadataField(ctx context.Context, ledgerID, field string, value any) ([]TransactionMetadata, error) {
	coll, err := c.collection(ctx)
	if err != nil {
		return nil, err
	}
	cur, err := coll.Find(ctx, bson.M{"ledgerId": ledgerID, "metadata." + field: value})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []TransactionMetadata
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
