package memory

import (
	"testing"

	"github.com/jcmexdev/ecommerce-fulfillment/internal/storefront-service/core/ports"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/storefront-service/infra/adapters/storage/storagetest"
)

func TestOrderRepository(t *testing.T) {
	storagetest.RunOrderRepository(t, func(*testing.T) ports.OrderRepository {
		return NewOrderRepository()
	})
}
