// Package app composes the storefront: it opens storage, builds the checkout,
// admin and accounts services, and hands them to the HTTP layer.
//
//	internal/app/
//	├── application.go   # wiring and lifecycle
//	├── domain/          # orders, transactions, profiles
//	├── storage/         # memory, postgres and supabase stores
//	├── services/        # checkout, admin, accounts, reconcile
//	├── payments/        # Razorpay gateway
//	├── notify/          # WhatsApp senders
//	├── events/          # live feed and Kafka publisher
//	├── idempotency/     # payment locks and webhook dedup
//	├── httpapi/         # routes and handlers
//	├── metrics/         # Prometheus collectors
//	└── system/          # service lifecycle manager
//
// Business rules live in services; this package only decides which
// implementations to use for a given configuration.
package app
