package ports

import "github.com/ArkLabsHQ/escrowd/internal/core/domain"

type RepoManager interface {
	Orders() domain.OrderRepository
	Close()
}
