// Package mongodb реализует хранилище реферальной сети на MongoDB.
// Список рефералов хранится в документе родителя, лимит проверяется условием обновления.
// Регистрация выполняется в транзакции, поэтому сервер должен быть запущен как replica set.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/magabrotheeeer/referral-network/internal/models"
	"github.com/magabrotheeeer/referral-network/internal/storage"
)

const (
	usersCollection        = "users"
	transactionsCollection = "transactions"
)

// Storage хранит пользователей и транзакции в двух коллекциях одной базы.
type Storage struct {
	client       *mongo.Client
	users        *mongo.Collection
	transactions *mongo.Collection
	now          func() time.Time
	newID        func() string
}

// New подключается к MongoDB, проверяет соединение и создаёт индексы.
func New(ctx context.Context, uri, database string) (*Storage, error) {
	const op = "storage.mongodb.New"

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	db := client.Database(database)
	s := &Storage{
		client:       client,
		users:        db.Collection(usersCollection),
		transactions: db.Collection(transactionsCollection),
		now:          func() time.Time { return time.Now().UTC() },
		newID:        uuid.NewString,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s, nil
}

func (s *Storage) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "referral_code", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "referred_by", Value: 1}, {Key: "created_at", Value: 1}},
		},
	})
	if err != nil {
		return err
	}

	_, err = s.transactions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}},
	})
	return err
}

// Ping проверяет соединение с MongoDB.
func (s *Storage) Ping(ctx context.Context) error {
	const op = "storage.mongodb.Ping"
	if err := s.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Close разрывает соединение с MongoDB.
func (s *Storage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Storage) findOne(ctx context.Context, op string, filter bson.M) (*models.User, error) {
	var u models.User
	if err := s.users.FindOne(ctx, filter).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &u, nil
}

// UserByUsername возвращает пользователя по имени.
func (s *Storage) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.findOne(ctx, "storage.mongodb.UserByUsername", bson.M{"username": username})
}

// UserByReferralCode возвращает пользователя по реферальному коду.
func (s *Storage) UserByReferralCode(ctx context.Context, code string) (*models.User, error) {
	return s.findOne(ctx, "storage.mongodb.UserByReferralCode", bson.M{"referral_code": code})
}

// UserByID возвращает пользователя по идентификатору.
func (s *Storage) UserByID(ctx context.Context, id string) (*models.User, error) {
	return s.findOne(ctx, "storage.mongodb.UserByID", bson.M{"_id": id})
}

// UsersByReferredBy возвращает пользователей, приглашённых любым из ids.
func (s *Storage) UsersByReferredBy(ctx context.Context, ids []string) ([]*models.User, error) {
	const op = "storage.mongodb.UsersByReferredBy"
	if len(ids) == 0 {
		return nil, nil
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cur, err := s.users.Find(ctx, bson.M{"referred_by": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer cur.Close(ctx)

	var result []*models.User
	if err := cur.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// CreateUser в одной транзакции проверяет уникальность, резервирует место в списке
// рефералов родителя условным $push и вставляет документ пользователя.
// Транзакции требуют replica set.
func (s *Storage) CreateUser(ctx context.Context, user models.User, maxReferrals int) (*models.User, error) {
	const op = "storage.mongodb.CreateUser"

	user.ID = s.newID()
	user.Referrals = []string{}
	user.DirectEarnings = 0
	user.IndirectEarnings = 0
	user.CreatedAt = s.now().Truncate(time.Millisecond)

	session, err := s.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer session.EndSession(context.WithoutCancel(ctx))

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		if err := s.checkUnique(sc, user); err != nil {
			return nil, err
		}
		if user.ReferredBy != nil {
			if err := s.reserveSlot(sc, *user.ReferredBy, user.ID, maxReferrals); err != nil {
				return nil, err
			}
		}
		if _, err := s.users.InsertOne(sc, user); err != nil {
			return nil, mapDuplicate(err)
		}
		return nil, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &user, nil
}

func (s *Storage) checkUnique(ctx context.Context, user models.User) error {
	n, err := s.users.CountDocuments(ctx, bson.M{"username": user.Username}, options.Count().SetLimit(1))
	if err != nil {
		return err
	}
	if n > 0 {
		return storage.ErrUsernameTaken
	}
	n, err = s.users.CountDocuments(ctx, bson.M{"referral_code": user.ReferralCode}, options.Count().SetLimit(1))
	if err != nil {
		return err
	}
	if n > 0 {
		return storage.ErrReferralCodeTaken
	}
	return nil
}

func (s *Storage) reserveSlot(ctx context.Context, parentID, childID string, maxReferrals int) error {
	filter := bson.M{
		"_id": parentID,
		"referrals." + strconv.Itoa(maxReferrals-1): bson.M{"$exists": false},
	}
	res, err := s.users.UpdateOne(ctx, filter, bson.M{"$push": bson.M{"referrals": childID}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 1 {
		return nil
	}

	n, err := s.users.CountDocuments(ctx, bson.M{"_id": parentID}, options.Count().SetLimit(1))
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("referrer: %w", storage.ErrUserNotFound)
	}
	return storage.ErrReferralLimit
}

func mapDuplicate(err error) error {
	if !mongo.IsDuplicateKeyError(err) {
		return err
	}
	switch msg := err.Error(); {
	case strings.Contains(msg, "referral_code"):
		return storage.ErrReferralCodeTaken
	case strings.Contains(msg, "username"):
		return storage.ErrUsernameTaken
	}
	return err
}

// AddDirectEarnings увеличивает прямой доход пользователя на delta.
func (s *Storage) AddDirectEarnings(ctx context.Context, id string, delta float64) error {
	return s.inc(ctx, "storage.mongodb.AddDirectEarnings", id, "direct_earnings", delta)
}

// AddIndirectEarnings увеличивает косвенный доход пользователя на delta.
func (s *Storage) AddIndirectEarnings(ctx context.Context, id string, delta float64) error {
	return s.inc(ctx, "storage.mongodb.AddIndirectEarnings", id, "indirect_earnings", delta)
}

func (s *Storage) inc(ctx context.Context, op, id, field string, delta float64) error {
	res, err := s.users.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{field: delta}})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}
	return nil
}

// CreateTransaction сохраняет транзакцию существующего пользователя.
func (s *Storage) CreateTransaction(ctx context.Context, tx models.Transaction) (*models.Transaction, error) {
	const op = "storage.mongodb.CreateTransaction"

	n, err := s.users.CountDocuments(ctx, bson.M{"_id": tx.UserID}, options.Count().SetLimit(1))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	tx.ID = s.newID()
	tx.CreatedAt = s.now().Truncate(time.Millisecond)
	if _, err := s.transactions.InsertOne(ctx, tx); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &tx, nil
}
