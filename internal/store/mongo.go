package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Collections names the three collections a document store exposes.
type Collections struct {
	Directory string `toml:"directory"`
	Accounts  string `toml:"accounts"`
	History   string `toml:"history"`
}

// WithDefaults fills unset names.
func (c Collections) WithDefaults() Collections {
	if c.Directory == "" {
		c.Directory = "directory"
	}
	if c.Accounts == "" {
		c.Accounts = "accounts"
	}
	if c.History == "" {
		c.History = "history"
	}
	return c
}

type mongoAccount struct {
	ID        any    `bson:"_id"`
	AccountID string `bson:"accountId"`
	Balance   int64  `bson:"balance"`
	Status    string `bson:"status"`
}

// MongoBackend reads and patches ledger documents held in MongoDB.
type MongoBackend struct {
	db   *mongo.Database
	cols Collections
}

// NewMongoBackend builds a store over the given database.
func NewMongoBackend(db *mongo.Database, cols Collections) *MongoBackend {
	return &MongoBackend{db: db, cols: cols.WithDefaults()}
}

func (b *MongoBackend) ListDirectory(ctx context.Context) ([]DirectoryRecord, error) {
	cur, err := b.db.Collection(b.cols.Directory).Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("find directory: %w", err)
	}
	var out []DirectoryRecord
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode directory: %w", err)
	}
	return out, nil
}

func (b *MongoBackend) FindAccount(ctx context.Context, accountID string) (Account, error) {
	var doc mongoAccount
	err := b.db.Collection(b.cols.Accounts).FindOne(ctx, bson.D{{Key: "accountId", Value: accountID}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("find account %s: %w", accountID, err)
	}
	recordID, err := documentID(doc.ID)
	if err != nil {
		return Account{}, fmt.Errorf("find account %s: %w", accountID, err)
	}
	return Account{
		InternalRecordID: recordID,
		AccountID:        doc.AccountID,
		Balance:          doc.Balance,
		Status:           ParseStatus(doc.Status),
	}, nil
}

// PatchBalance sets only the balance field of the document.
func (b *MongoBackend) PatchBalance(ctx context.Context, internalRecordID string, newBalance int64) error {
	res, err := b.db.Collection(b.cols.Accounts).UpdateOne(ctx,
		bson.D{{Key: "_id", Value: documentKey(internalRecordID)}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "balance", Value: newBalance}}}},
	)
	if err != nil {
		return fmt.Errorf("patch balance: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (b *MongoBackend) AppendHistory(ctx context.Context, record TransferRecord) error {
	if _, err := b.db.Collection(b.cols.History).InsertOne(ctx, record); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// extIDPrefix marks ids of any other BSON type, kept as canonical extended
// JSON so they can be decoded back to the same value and type.
const extIDPrefix = `{"_id":`

// documentID renders an _id as an InternalRecordID. ObjectIDs become their hex
// form and strings are kept as is.
func documentID(id any) (string, error) {
	switch v := id.(type) {
	case primitive.ObjectID:
		return v.Hex(), nil
	case string:
		return v, nil
	default:
		raw, err := bson.MarshalExtJSON(bson.D{{Key: "_id", Value: v}}, true, false)
		if err != nil {
			return "", fmt.Errorf("encode _id %v: %w", v, err)
		}
		return string(raw), nil
	}
}

// documentKey builds the _id filter for an InternalRecordID. A hex string may
// be either an ObjectID or a plain string key, so both are matched.
func documentKey(id string) any {
	if strings.HasPrefix(id, extIDPrefix) {
		var doc bson.D
		if err := bson.UnmarshalExtJSON([]byte(id), true, &doc); err == nil && len(doc) == 1 {
			return doc[0].Value
		}
	}
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.D{{Key: "$in", Value: bson.A{oid, id}}}
	}
	return id
}
