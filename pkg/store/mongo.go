package store

import (
	"context"
	"time"

	"github.com/mahaj/dupahar-dm/pkg/model"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const messagesCollection = "messages"

// mongoMessage adds the channel key so a pair's history is one indexed lookup.
type mongoMessage struct {
	model.Message `bson:",inline"`
	Channel       string `bson:"channel"`
}

type Mongo struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// OpenMongo connects, pings and makes sure the indexes exist.
func OpenMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "connect mongo")
	}
	if err := cli.Ping(ctx, nil); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, errors.Wrap(err, "ping mongo")
	}

	s := &Mongo{client: cli, coll: cli.Database(database).Collection(messagesCollection)}
	_, err = s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "channel", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "sender", Value: 1}}},
		{Keys: bson.D{{Key: "recipient", Value: 1}, {Key: "read", Value: 1}}},
	})
	if err != nil {
		_ = cli.Disconnect(ctx)
		return nil, errors.Wrap(err, "create mongo indexes")
	}
	return s, nil
}

func (s *Mongo) CreateMessage(ctx context.Context, m model.Message) (int64, error) {
	if err := validate(m); err != nil {
		return 0, err
	}
	m.Read = false
	_, err := s.coll.InsertOne(ctx, mongoMessage{Message: m, Channel: m.ChannelID()})
	if mongo.IsDuplicateKeyError(err) {
		return 0, errors.Wrapf(ErrDuplicateID, "id %d", m.ID)
	}
	if err != nil {
		return 0, errors.Wrap(err, "mongo: insert message")
	}
	return m.ID, nil
}

func (s *Mongo) QueryMessages(ctx context.Context, userA, userB string, r model.Range) ([]model.Message, error) {
	filter := bson.M{"channel": model.DMChannelID(userA, userB)}
	created := bson.M{}
	if !r.After.IsZero() {
		created["$gt"] = r.After
	}
	if !r.Before.IsZero() {
		created["$lt"] = r.Before
	}
	if len(created) > 0 {
		filter["createdAt"] = created
	}

	// Newest first so the limit keeps the latest; window restores ascending order.
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	if r.Limit > 0 {
		opts.SetLimit(int64(r.Limit))
	}
	msgs, err := s.find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	return window(msgs, r), nil
}

func (s *Mongo) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]model.Message, error) {
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "mongo: find messages")
	}
	defer cur.Close(ctx)

	var out []model.Message
	for cur.Next(ctx) {
		var doc mongoMessage
		if err := cur.Decode(&doc); err != nil {
			return nil, errors.Wrap(err, "mongo: decode message")
		}
		doc.CreatedAt = doc.CreatedAt.UTC()
		out = append(out, doc.Message)
	}
	return out, errors.Wrap(cur.Err(), "mongo: iterate messages")
}

type mongoSummary struct {
	UserID          string    `bson:"_id"`
	LastMessage     string    `bson:"lastMessage"`
	LastMessageTime time.Time `bson:"lastMessageTime"`
	UnreadCount     int64     `bson:"unreadCount"`
}

// conversationsPipeline groups the user's messages by counterpart on the
// server: newest message first, then one row per peer.
func conversationsPipeline(user string) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"$or": bson.A{
			bson.M{"sender": user},
			bson.M{"recipient": user},
		}}}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.M{"$cond": bson.A{bson.M{"$eq": bson.A{"$sender", user}}, "$recipient", "$sender"}}},
			{Key: "lastMessage", Value: bson.M{"$first": "$content"}},
			{Key: "lastMessageTime", Value: bson.M{"$first": "$createdAt"}},
			{Key: "unreadCount", Value: bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$and": bson.A{
					bson.M{"$eq": bson.A{"$recipient", user}},
					bson.M{"$ne": bson.A{"$sender", user}},
					bson.M{"$eq": bson.A{"$read", false}},
				}},
				1, 0,
			}}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "lastMessageTime", Value: -1}, {Key: "_id", Value: 1}}}},
	}
}

func (s *Mongo) Conversations(ctx context.Context, user string) ([]model.ConversationSummary, error) {
	cur, err := s.coll.Aggregate(ctx, conversationsPipeline(user))
	if err != nil {
		return nil, errors.Wrap(err, "mongo: aggregate conversations")
	}
	defer cur.Close(ctx)

	var rows []mongoSummary
	if err := cur.All(ctx, &rows); err != nil {
		return nil, errors.Wrap(err, "mongo: decode conversations")
	}
	out := make([]model.ConversationSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.ConversationSummary{
			UserID:          r.UserID,
			LastMessage:     r.LastMessage,
			LastMessageTime: r.LastMessageTime.UTC(),
			UnreadCount:     r.UnreadCount,
		})
	}
	return out, nil
}

func (s *Mongo) MarkRead(ctx context.Context, reader, counterpart string) (int64, error) {
	if reader == counterpart {
		return 0, nil
	}
	res, err := s.coll.UpdateMany(ctx,
		bson.M{"sender": counterpart, "recipient": reader, "read": false},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return 0, errors.Wrap(err, "mongo: mark read")
	}
	return res.ModifiedCount, nil
}

func (s *Mongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
