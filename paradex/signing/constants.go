package signing

// SNIP-12 rev 0 类型串。类型哈希 = starknet_keccak(类型串)。
const (
	domainTypeString     = "StarkNetDomain(name:felt,version:felt,chainId:felt)"
	onboardingTypeString = "Constant(action:felt)"
	authTypeString       = "Request(method:felt,path:felt,body:felt,timestamp:felt,expiration:felt)"
	orderTypeString      = "Order(timestamp:felt,market:felt,side:felt,orderType:felt,size:felt,price:felt)"

	domainName    = "Paradex"
	domainVersion = 1

	// messagePrefix 是 rev 0 消息哈希链的首元素
	messagePrefix = "StarkNet Message"

	onboardingAction = "Onboarding"

	authMethod = "POST"
	authPath   = "/v1/auth"

	// AuthExpiryWindow 签名挑战的有效期（秒）。这是签名本身的有效窗口，
	// 与 JWT 的存活时间无关。
	AuthExpiryWindow = 24 * 60 * 60

	// orderAmountShift 订单 size/price 上链编码的小数位数（1e8 定点）
	orderAmountShift = 8
)
