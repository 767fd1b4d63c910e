package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MessagesCollection is the collection holding relayed messages.
const MessagesCollection = "messages"

type messageDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Sender    string             `bson:"sender"`
	Recipient string             `bson:"recipient"`
	Text      string             `bson:"text,omitempty"`
	File      string             `bson:"file,omitempty"`
	CreatedAt time.Time          `bson:"createdAt"`
}

func (d messageDoc) message() Message {
	return Message{
		ID:          d.ID.Hex(),
		SenderID:    d.Sender,
		RecipientID: d.Recipient,
		Text:        d.Text,
		FileURL:     d.File,
		CreatedAt:   d.CreatedAt,
	}
}

// Mongo stores messages in a MongoDB collection; ids are ObjectIDs.
type Mongo struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewMongo wraps the messages collection of db.
func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{coll: db.Collection(MessagesCollection), now: time.Now}
}

// EnsureIndexes creates the index used by History.
func (s *Mongo) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "sender", Value: 1}, {Key: "recipient", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	return wrapErr("ensure indexes", err)
}

// Persist implements Persister.
func (s *Mongo) Persist(ctx context.Context, d Draft) (Message, error) {
	if err := d.Validate(); err != nil {
		return Message{}, wrapErr("persist", err)
	}
	doc := messageDoc{
		Sender:    d.SenderID,
		Recipient: d.RecipientID,
		Text:      d.Text,
		File:      d.FileURL,
		CreatedAt: s.now().UTC(),
	}
	res, err := s.coll.InsertOne(ctx, doc)
	if err != nil {
		return Message{}, wrapErr("persist", err)
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return Message{}, wrapErr("persist", errors.Errorf("unexpected inserted id %T", res.InsertedID))
	}
	doc.ID = oid
	return doc.message(), nil
}

// History implements MessageStore.
func (s *Mongo) History(ctx context.Context, a, b string, limit int) ([]Message, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"sender": a, "recipient": b},
		bson.M{"sender": b, "recipient": a},
	}}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(normalizeLimit(limit)))

	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, wrapErr("history", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	var docs []messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, wrapErr("history", err)
	}
	out := make([]Message, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.message())
	}
	reverse(out)
	return out, nil
}

// Close implements MessageStore. The client is owned by the caller.
func (s *Mongo) Close(context.Context) error {
	return nil
}

// ConnectMongo dials uri and verifies the connection with a ping.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "mongo connect")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "mongo ping")
	}
	return client, nil
}
