package tasks

import "context"

type Repository interface {
	Insert(ctx context.Context, row *Row) error
	DeleteAll(ctx context.Context) error
	List(ctx context.Context) ([]*Row, error)
	Count(ctx context.Context) (int, error)
}
