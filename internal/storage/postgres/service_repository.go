package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/psp/internal/domain"
)

const opTimeout = 5 * time.Second

// serviceColumns сопоставляет ключи условий/сортировки с колонками таблицы.
// Неизвестный ключ — ошибка исполнителя.
var serviceColumns = map[string]string{
	"id":       "id",
	"code":     "code",
	"type":     "type",
	"name":     "name",
	"provider": "provider",
	"status":   "status",
	"position": "position",
}

type serviceRepository struct {
	db *sql.DB
}

// NewServiceRepository создаёт PostgreSQL-реализацию поискового бэкенда.
func NewServiceRepository(store *Store) domain.ServiceRepository {
	return &serviceRepository{db: store.DB()}
}

const serviceSelectColumns = `id, code, type, name, provider, status, position, config, version, created_at, updated_at`

// Search транслирует фильтр в SQL и исполняет его: отдельный COUNT без окна
// пагинации, затем выборка страницы.
func (r *serviceRepository) Search(ctx context.Context, filter domain.Filter) ([]domain.Service, int, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	where, args, err := buildWhere(filter.Root())
	if err != nil {
		return nil, 0, err
	}
	orderBy, err := buildOrderBy(filter.Sort)
	if err != nil {
		return nil, 0, err
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM services` + where
	if err := r.db.QueryRowContext(queryCtx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count services: %w", err)
	}

	query := `SELECT ` + serviceSelectColumns + ` FROM services` + where + orderBy
	pageArgs := args
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(pageArgs)+1)
		pageArgs = append(pageArgs, filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", len(pageArgs)+1)
		pageArgs = append(pageArgs, filter.Offset)
	}

	rows, err := r.db.QueryContext(queryCtx, query, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("select services: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var services []domain.Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, 0, err
		}
		services = append(services, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate services: %w", err)
	}

	for i := range services {
		if err := r.loadRelated(queryCtx, &services[i], filter); err != nil {
			return nil, 0, err
		}
	}

	return services, total, nil
}

// FindByCode возвращает запись по уникальному коду или ErrServiceNotFound.
func (r *serviceRepository) FindByCode(ctx context.Context, code string) (domain.Service, error) {
	return r.selectOne(ctx, `WHERE code = $1`, code)
}

// Get возвращает запись по идентификатору или ErrServiceNotFound.
func (r *serviceRepository) Get(ctx context.Context, id string) (domain.Service, error) {
	return r.selectOne(ctx, `WHERE id = $1`, id)
}

func (r *serviceRepository) selectOne(ctx context.Context, where string, arg any) (domain.Service, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(queryCtx, `SELECT `+serviceSelectColumns+` FROM services `+where, arg)
	svc, err := scanService(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Service{}, domain.ErrServiceNotFound
		}
		return domain.Service{}, err
	}
	return svc, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanService(row rowScanner) (domain.Service, error) {
	var svc domain.Service
	var svcType string
	var config []byte

	err := row.Scan(
		&svc.ID, &svc.Code, &svcType, &svc.Name, &svc.Provider,
		&svc.Status, &svc.Position, &config, &svc.Version,
		&svc.CreatedAt, &svc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Service{}, err
		}
		return domain.Service{}, fmt.Errorf("scan service: %w", err)
	}
	svc.Type = domain.ServiceType(svcType)
	if len(config) > 0 {
		if err := json.Unmarshal(config, &svc.Config); err != nil {
			return domain.Service{}, fmt.Errorf("decode service config: %w", err)
		}
	}
	return svc, nil
}

// loadRelated подгружает запрошенные связанные домены записи.
func (r *serviceRepository) loadRelated(ctx context.Context, svc *domain.Service, filter domain.Filter) error {
	if filter.WantsRelated(domain.RelatedPrice) {
		rows, err := r.db.QueryContext(ctx,
			`SELECT currency, amount_minor FROM service_prices WHERE service_id = $1 ORDER BY currency`, svc.ID)
		if err != nil {
			return fmt.Errorf("select service prices: %w", err)
		}
		for rows.Next() {
			var p domain.ServicePrice
			if err := rows.Scan(&p.Currency, &p.AmountMinor); err != nil {
				_ = rows.Close()
				return fmt.Errorf("scan service price: %w", err)
			}
			svc.Prices = append(svc.Prices, p)
		}
		_ = rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate service prices: %w", err)
		}
	}

	if filter.WantsRelated(domain.RelatedText) {
		rows, err := r.db.QueryContext(ctx,
			`SELECT locale, title, description FROM service_texts WHERE service_id = $1 ORDER BY locale`, svc.ID)
		if err != nil {
			return fmt.Errorf("select service texts: %w", err)
		}
		for rows.Next() {
			var t domain.ServiceText
			if err := rows.Scan(&t.Locale, &t.Title, &t.Description); err != nil {
				_ = rows.Close()
				return fmt.Errorf("scan service text: %w", err)
			}
			svc.Texts = append(svc.Texts, t)
		}
		_ = rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate service texts: %w", err)
		}
	}

	if filter.WantsRelated(domain.RelatedMedia) {
		rows, err := r.db.QueryContext(ctx,
			`SELECT kind, url FROM service_media WHERE service_id = $1 ORDER BY kind, url`, svc.ID)
		if err != nil {
			return fmt.Errorf("select service media: %w", err)
		}
		for rows.Next() {
			var m domain.ServiceMedia
			if err := rows.Scan(&m.Kind, &m.URL); err != nil {
				_ = rows.Close()
				return fmt.Errorf("scan service media: %w", err)
			}
			svc.Media = append(svc.Media, m)
		}
		_ = rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate service media: %w", err)
		}
	}

	return nil
}

// buildWhere транслирует AND-узел фильтра в WHERE-клаузу с плейсхолдерами.
func buildWhere(root domain.Condition) (string, []any, error) {
	if root == nil {
		return "", nil, nil
	}
	var args []any
	clause, err := conditionSQL(root, &args)
	if err != nil {
		return "", nil, err
	}
	return " WHERE " + clause, args, nil
}

func conditionSQL(cond domain.Condition, args *[]any) (string, error) {
	switch node := cond.(type) {
	case domain.Compare:
		return compareSQL(node, args)
	case domain.Combinator:
		switch node.Op {
		case domain.CombineAnd, domain.CombineOr:
			joiner := " AND "
			if node.Op == domain.CombineOr {
				joiner = " OR "
			}
			parts := make([]string, 0, len(node.Subs))
			for _, sub := range node.Subs {
				part, err := conditionSQL(sub, args)
				if err != nil {
					return "", err
				}
				parts = append(parts, part)
			}
			return "(" + strings.Join(parts, joiner) + ")", nil
		case domain.CombineNot:
			if len(node.Subs) != 1 {
				return "", fmt.Errorf("combinator %q expects exactly one child", node.Op)
			}
			part, err := conditionSQL(node.Subs[0], args)
			if err != nil {
				return "", err
			}
			return "NOT " + part, nil
		default:
			return "", fmt.Errorf("unknown combinator %q", node.Op)
		}
	default:
		return "", fmt.Errorf("unknown condition node %T", cond)
	}
}

func compareSQL(cmp domain.Compare, args *[]any) (string, error) {
	column, ok := serviceColumns[strings.TrimPrefix(cmp.Key, "service.")]
	if !ok {
		return "", fmt.Errorf("unknown field %q", cmp.Key)
	}

	switch cmp.Op {
	case domain.OpEq, domain.OpNe, domain.OpLt, domain.OpLe, domain.OpGe, domain.OpGt:
		op := string(cmp.Op)
		if cmp.Op == domain.OpEq {
			op = "="
		}
		if cmp.Op == domain.OpNe {
			op = "<>"
		}
		*args = append(*args, cmp.Value)
		return fmt.Sprintf("%s %s $%d", column, op, len(*args)), nil
	case domain.OpContains:
		*args = append(*args, fmt.Sprintf("%%%v%%", cmp.Value))
		return fmt.Sprintf("%s::TEXT ILIKE $%d", column, len(*args)), nil
	case domain.OpPrefix:
		*args = append(*args, fmt.Sprintf("%v%%", cmp.Value))
		return fmt.Sprintf("%s::TEXT ILIKE $%d", column, len(*args)), nil
	default:
		return "", domain.ErrInvalidOperator
	}
}

// buildOrderBy транслирует ключи сортировки. Без ключей действует порядок по
// умолчанию: position, затем код.
func buildOrderBy(keys []domain.SortKey) (string, error) {
	if len(keys) == 0 {
		return " ORDER BY position ASC, code ASC", nil
	}

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		column, ok := serviceColumns[strings.TrimPrefix(key.Key, "service.")]
		if !ok {
			return "", fmt.Errorf("unknown sort key %q", key.Key)
		}
		dir := "ASC"
		if key.Desc {
			dir = "DESC"
		}
		parts = append(parts, column+" "+dir)
	}
	return " ORDER BY " + strings.Join(parts, ", "), nil
}

var _ domain.ServiceRepository = (*serviceRepository)(nil)
