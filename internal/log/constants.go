package log

const (
	KeyAppName            = "app"
	KeyRequestID          = "requestId"
	KeyProcess            = "process"
	KeyTag                = "tag"
	KeyConfig             = "config"
	KeyRequest            = "request"
	KeyRequestBody        = "requestBody"
	KeyRequestHeader      = "requestHeader"
	KeyRequestHost        = "host"
	KeyRequestIp          = "requesterIP"
	KeyRequestMethod      = "requestMethod"
	KeyRequestURI         = "requestURI"
	KeyRequestURL         = "requestURL"
	KeyTraceID            = "traceId"
	KeySpanID             = "spanId"
	KeyPathValues         = "pathValues"
	KeySessionID          = "sessionId"
	KeyUserID             = "userId"
	KeyRole               = "role"
	KeyItemID             = "itemId"
	KeyQuantity           = "quantity"
	KeyCart               = "cart"
	KeyCartID             = "cartId"
	KeyCartRevision       = "cartRevision"
	KeyCacheKey           = "cacheKey"
	KeyOrderID            = "orderId"
	KeyOrderNumber        = "orderNumber"
	KeyOrder              = "order"
	KeyOrders             = "orders"
	KeyOrderStatus        = "orderStatus"
	KeyOrderStatusTarget  = "orderStatusTarget"
	KeyCheckoutKey        = "checkoutKey"
	KeyQuote              = "quote"
	KeyEvent              = "event"
	KeyDbURL              = "dbUrl"
	KeyBroker             = "broker"
	KeyCatalogURL         = "catalogUrl"
	KeyBreakerState       = "breakerState"
	KeySubscribers        = "subscribers"
	KeyValidationFields   = "validationFields"
	KeyRequestProcessedAt = "requestProcessedAt"
)
