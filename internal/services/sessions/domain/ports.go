package domain

import "context"

// ServicePort defines the session broker contract
type ServicePort interface {
	Create(ctx context.Context, in CreateInput) (Session, error)
	Get(ctx context.Context, id string) (Session, error)
	Status(ctx context.Context, id string) (StatusView, error)
	MarkServed(ctx context.Context, id string) (Session, error)
	Submit(ctx context.Context, in TokenInput) (StatusView, error)
	Active(ctx context.Context) int
}
