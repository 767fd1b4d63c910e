package account

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UsersCollection is the collection holding accounts.
const UsersCollection = "users"

type userDoc struct {
	ID       primitive.ObjectID `bson:"_id,omitempty"`
	Username string             `bson:"username"`
	Password []byte             `bson:"password"`
}

// MongoUsers stores accounts in MongoDB with a unique username index.
type MongoUsers struct {
	coll *mongo.Collection
}

// NewMongoUsers wraps the users collection of db.
func NewMongoUsers(db *mongo.Database) *MongoUsers {
	return &MongoUsers{coll: db.Collection(UsersCollection)}
}

// EnsureIndexes creates the unique username index.
func (s *MongoUsers) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return errors.Wrap(err, "account: ensure indexes")
}

// Create implements Users.
func (s *MongoUsers) Create(ctx context.Context, username string, passwordHash []byte) (User, error) {
	res, err := s.coll.InsertOne(ctx, userDoc{Username: username, Password: passwordHash})
	if mongo.IsDuplicateKeyError(err) {
		return User{}, ErrUserExists
	}
	if err != nil {
		return User{}, errors.Wrap(err, "account: create user")
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return User{}, errors.Errorf("account: unexpected inserted id %T", res.InsertedID)
	}
	return User{ID: oid.Hex(), Username: username, PasswordHash: passwordHash}, nil
}

// FindByUsername implements Users.
func (s *MongoUsers) FindByUsername(ctx context.Context, username string) (User, error) {
	var doc userDoc
	err := s.coll.FindOne(ctx, bson.M{"username": username}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, errors.Wrap(err, "account: find user")
	}
	return User{ID: doc.ID.Hex(), Username: doc.Username, PasswordHash: doc.Password}, nil
}
