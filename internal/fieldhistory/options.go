package fieldhistory

import (
	"field-history/internal/codec"
)

// Option configures a Coordinator at registration.
type Option func(*options)

type options struct {
	codec      codec.Codec
	codecName  string
	tx         Transactor
	users      UserResolver
	publisher  Publisher
	registry   *Registry
	entityType string
}

// WithCodec sets the codec directly.
func WithCodec(c codec.Codec) Option {
	return func(o *options) { o.codec = c }
}

// WithCodecName resolves the codec from codec.Default at registration.
func WithCodecName(name string) Option {
	return func(o *options) { o.codecName = name }
}

// WithTransactor couples the host write and the history batch.
func WithTransactor(tx Transactor) Option {
	return func(o *options) { o.tx = tx }
}

// WithUserResolver replaces the ambient user lookup.
func WithUserResolver(r UserResolver) Option {
	return func(o *options) { o.users = r }
}

// WithPublisher forwards committed records.
func WithPublisher(p Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithRegistry registers the coordinator somewhere other than DefaultRegistry.
func WithRegistry(r *Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithEntityType overrides the entity type discriminator.
func WithEntityType(name string) Option {
	return func(o *options) { o.entityType = name }
}
