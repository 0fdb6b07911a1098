package core

import "context"

// ClientRepository es el store externo (fuente de verdad) de ClientConfig.
// Load devuelve ErrNotFound si el id no existe.
type ClientRepository interface {
	Load(ctx context.Context, id string) (*ClientConfig, error)
}

// ClientWriter lo implementan los stores que admiten altas/updates administrativos.
type ClientWriter interface {
	Upsert(ctx context.Context, c *ClientConfig) error
	Delete(ctx context.Context, id string) error
}
