package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vladislavdragonenkov/psp/internal/domain"
)

// serviceFields сопоставляет ключи условий/сортировки с полями документа.
var serviceFields = map[string]string{
	"id":       "_id",
	"code":     "code",
	"type":     "type",
	"name":     "name",
	"provider": "provider",
	"status":   "status",
	"position": "position",
}

// ServiceRepository — MongoDB-реализация поискового бэкенда по способам.
type ServiceRepository struct {
	collection *mongo.Collection
}

// NewServiceRepository создаёт репозиторий поверх коллекции services.
func NewServiceRepository(store *Store, collectionName string) *ServiceRepository {
	return &ServiceRepository{collection: store.Database().Collection(collectionName)}
}

// Search транслирует дерево условий в bson-фильтр и исполняет его.
// Общее число совпадений считается отдельным CountDocuments без окна
// пагинации.
func (r *ServiceRepository) Search(ctx context.Context, filter domain.Filter) ([]domain.Service, int, error) {
	mongoFilter, err := conditionToBSON(filter.Root())
	if err != nil {
		return nil, 0, err
	}
	if mongoFilter == nil {
		mongoFilter = bson.M{}
	}

	total, err := r.collection.CountDocuments(ctx, mongoFilter)
	if err != nil {
		return nil, 0, fmt.Errorf("count services: %w", err)
	}

	sortSpec, err := sortToBSON(filter.Sort)
	if err != nil {
		return nil, 0, err
	}

	findOpts := options.Find().SetSort(sortSpec)
	if filter.Offset > 0 {
		findOpts.SetSkip(int64(filter.Offset))
	}
	if filter.Limit > 0 {
		findOpts.SetLimit(int64(filter.Limit))
	}

	cursor, err := r.collection.Find(ctx, mongoFilter, findOpts)
	if err != nil {
		return nil, 0, fmt.Errorf("find services: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	services := make([]domain.Service, 0)
	for cursor.Next(ctx) {
		var doc serviceDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, 0, fmt.Errorf("decode service: %w", err)
		}
		services = append(services, mapServiceDocument(doc).StripRelated(filter))
	}
	if err := cursor.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate services: %w", err)
	}

	return services, int(total), nil
}

// FindByCode возвращает запись по уникальному коду или ErrServiceNotFound.
func (r *ServiceRepository) FindByCode(ctx context.Context, code string) (domain.Service, error) {
	return r.findOne(ctx, bson.M{"code": code})
}

// Get возвращает запись по идентификатору или ErrServiceNotFound.
func (r *ServiceRepository) Get(ctx context.Context, id string) (domain.Service, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *ServiceRepository) findOne(ctx context.Context, filter bson.M) (domain.Service, error) {
	var doc serviceDocument
	if err := r.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Service{}, domain.ErrServiceNotFound
		}
		return domain.Service{}, fmt.Errorf("find service: %w", err)
	}
	return mapServiceDocument(doc), nil
}

// conditionToBSON рекурсивно транслирует узел условия в bson-фильтр.
// nil-условие означает отсутствие ограничений.
func conditionToBSON(cond domain.Condition) (bson.M, error) {
	switch node := cond.(type) {
	case nil:
		return nil, nil
	case domain.Compare:
		return compareToBSON(node)
	case domain.Combinator:
		switch node.Op {
		case domain.CombineAnd, domain.CombineOr:
			subs := make([]bson.M, 0, len(node.Subs))
			for _, sub := range node.Subs {
				m, err := conditionToBSON(sub)
				if err != nil {
					return nil, err
				}
				subs = append(subs, m)
			}
			key := "$and"
			if node.Op == domain.CombineOr {
				key = "$or"
			}
			return bson.M{key: subs}, nil
		case domain.CombineNot:
			if len(node.Subs) != 1 {
				return nil, fmt.Errorf("combinator %q expects exactly one child", node.Op)
			}
			m, err := conditionToBSON(node.Subs[0])
			if err != nil {
				return nil, err
			}
			return bson.M{"$nor": []bson.M{m}}, nil
		default:
			return nil, fmt.Errorf("unknown combinator %q", node.Op)
		}
	default:
		return nil, fmt.Errorf("unknown condition node %T", cond)
	}
}

func compareToBSON(cmp domain.Compare) (bson.M, error) {
	field, ok := serviceFields[strings.TrimPrefix(cmp.Key, "service.")]
	if !ok {
		return nil, fmt.Errorf("unknown field %q", cmp.Key)
	}

	switch cmp.Op {
	case domain.OpEq:
		return bson.M{field: cmp.Value}, nil
	case domain.OpNe:
		return bson.M{field: bson.M{"$ne": cmp.Value}}, nil
	case domain.OpLt:
		return bson.M{field: bson.M{"$lt": cmp.Value}}, nil
	case domain.OpLe:
		return bson.M{field: bson.M{"$lte": cmp.Value}}, nil
	case domain.OpGe:
		return bson.M{field: bson.M{"$gte": cmp.Value}}, nil
	case domain.OpGt:
		return bson.M{field: bson.M{"$gt": cmp.Value}}, nil
	case domain.OpContains:
		return bson.M{field: bson.M{"$regex": regexp.QuoteMeta(fmt.Sprint(cmp.Value)), "$options": "i"}}, nil
	case domain.OpPrefix:
		return bson.M{field: bson.M{"$regex": "^" + regexp.QuoteMeta(fmt.Sprint(cmp.Value)), "$options": "i"}}, nil
	default:
		return nil, domain.ErrInvalidOperator
	}
}

// sortToBSON транслирует ключи сортировки. Без ключей действует порядок по
// умолчанию: position, затем код.
func sortToBSON(keys []domain.SortKey) (bson.D, error) {
	if len(keys) == 0 {
		return bson.D{{Key: "position", Value: 1}, {Key: "code", Value: 1}}, nil
	}

	spec := make(bson.D, 0, len(keys))
	for _, key := range keys {
		field, ok := serviceFields[strings.TrimPrefix(key.Key, "service.")]
		if !ok {
			return nil, fmt.Errorf("unknown sort key %q", key.Key)
		}
		dir := 1
		if key.Desc {
			dir = -1
		}
		spec = append(spec, bson.E{Key: field, Value: dir})
	}
	return spec, nil
}

var _ domain.ServiceRepository = (*ServiceRepository)(nil)
