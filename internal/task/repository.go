package task

import (
	"context"
	"errors"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Repository is the document-collection access layer underneath the store
// gateway.
type Repository interface {
	Find(ctx context.Context, c Criteria) ([]Task, error)
	Insert(ctx context.Context, t Task) error
	UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error
	Delete(ctx context.Context, id string) error
	Watch(ctx context.Context) (ChangeStream, error)
}

// ChangeStream delivers a signal for every change to the task collection.
// Next blocks until a change arrives or ctx is cancelled.
type ChangeStream interface {
	Next(ctx context.Context) bool
	Err() error
	Close(ctx context.Context) error
}

type mongoRepository struct {
	collection *mongo.Collection
}

func NewRepository(collection *mongo.Collection) Repository {
	return &mongoRepository{collection: collection}
}

func (r *mongoRepository) Find(ctx context.Context, c Criteria) ([]Task, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	cur, err := r.collection.Find(ctx, criteriaFilter(c), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var tasks []Task
	for cur.Next(ctx) {
		var t Task
		if err := cur.Decode(&t); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *mongoRepository) Insert(ctx context.Context, t Task) error {
	_, err := r.collection.InsertOne(ctx, t)
	return err
}

func (r *mongoRepository) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoRepository) Delete(ctx context.Context, id string) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoRepository) Watch(ctx context.Context) (ChangeStream, error) {
	stream, err := r.collection.Watch(ctx, mongo.Pipeline{},
		options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// criteriaFilter compiles the server-side half of the criteria to a mongo
// filter. State and floor equality are case-insensitive because both are
// stored as display text; the date range is inclusive on createdAt.
func criteriaFilter(c Criteria) bson.M {
	filter := bson.M{
		"state": caseInsensitiveEq(string(c.Mode)),
	}
	if c.Supervisor != "" {
		filter["assignedTo"] = c.Supervisor
	}
	if c.Floor != "" && c.Floor != FloorAll {
		filter["floor"] = caseInsensitiveEq(c.Floor)
	}
	created := bson.M{}
	if c.DateFrom != nil {
		created["$gte"] = *c.DateFrom
	}
	if c.DateTo != nil {
		created["$lte"] = *c.DateTo
	}
	if len(created) > 0 {
		filter["createdAt"] = created
	}
	return filter
}

func caseInsensitiveEq(value string) primitive.Regex {
	return primitive.Regex{Pattern: "^" + regexp.QuoteMeta(value) + "$", Options: "i"}
}

// IsNotFound reports whether err is the repository's missing-document error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, mongo.ErrNoDocuments)
}
