package constants

const (
	AppCartService         = "cart-service"
	AppOrderService        = "order-service"
	AppNotificationService = "notification-service"
	AppMainStorefront      = "main storefront"
	AudienceStorefront     = "audience-storefront"
)

const (
	CacheKeyCart         = "carts:%s"
	CacheKeyOrder        = "orders:%s"
	CacheKeyOrderVersion = "orders:%s:version"
)

const (
	ChannelOrderStatusUpdated  = "order-status-updated"
	ExchangeOrderStatusFanout  = "order_status_fanout"
	QueueOrderStatusDashboards = "order_status.dashboards"
)
