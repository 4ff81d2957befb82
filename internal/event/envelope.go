package event

// CommandType discriminator for inbound command payloads
type CommandType int32

const (
	CommandTypeUnknown CommandType = iota
	CommandTypeApproveAuction
	CommandTypeOpenAuction
	CommandTypeOpenAuctionPermissionless
	CommandTypeBid
	CommandTypeCloseAuction
	CommandTypePokeFolio
	CommandTypeUpdateFeeRecipients
	CommandTypeDistributeFees
	CommandTypeSetMintFee
	CommandTypeSetBasketRange
	CommandTypeSetDustAmount
	CommandTypeRemoveBasketToken
	CommandTypeAddToBasket
	CommandTypeMintShares
	CommandTypeClosePendingBasket
	CommandTypeSetRewardRatio
	CommandTypeAddRewardToken
	CommandTypeRemoveRewardToken
	CommandTypeAccrueRewards
	CommandTypeClaimRewards
)

// Envelope wraps every applied command in the log
type Envelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Command type discriminator
	CommandType CommandType

	// Fund context (nullable for global commands)
	FundID *string

	// Versioned input timestamp in unix seconds (NOT wall-clock)
	At int64

	// Upstream sequence for ordering validation
	SourceSequence int64

	// JSON-encoded command payload
	Payload []byte

	// SHA-256 of state AFTER applying this command
	StateHash [32]byte

	// Previous command's state hash (chain integrity)
	PrevHash [32]byte
}

// Command is the interface all inbound payloads must implement
type Command interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// CommandType returns the discriminator
	CommandType() CommandType

	// FundID returns the fund context (nil for global commands)
	FundID() *string

	// SourceSequence returns upstream ordering key
	SourceSequence() int64

	// At returns the versioned unix-second timestamp carried by the
	// command. The core never reads the wall clock; all elapsed-time
	// accrual derives from this input.
	At() int64
}

func (ct CommandType) String() string {
	switch ct {
	case CommandTypeApproveAuction:
		return "ApproveAuction"
	case CommandTypeOpenAuction:
		return "OpenAuction"
	case CommandTypeOpenAuctionPermissionless:
		return "OpenAuctionPermissionless"
	case CommandTypeBid:
		return "Bid"
	case CommandTypeCloseAuction:
		return "CloseAuction"
	case CommandTypePokeFolio:
		return "PokeFolio"
	case CommandTypeUpdateFeeRecipients:
		return "UpdateFeeRecipients"
	case CommandTypeDistributeFees:
		return "DistributeFees"
	case CommandTypeSetMintFee:
		return "SetMintFee"
	case CommandTypeSetBasketRange:
		return "SetBasketRange"
	case CommandTypeSetDustAmount:
		return "SetDustAmount"
	case CommandTypeRemoveBasketToken:
		return "RemoveBasketToken"
	case CommandTypeAddToBasket:
		return "AddToBasket"
	case CommandTypeMintShares:
		return "MintShares"
	case CommandTypeClosePendingBasket:
		return "ClosePendingBasket"
	case CommandTypeSetRewardRatio:
		return "SetRewardRatio"
	case CommandTypeAddRewardToken:
		return "AddRewardToken"
	case CommandTypeRemoveRewardToken:
		return "RemoveRewardToken"
	case CommandTypeAccrueRewards:
		return "AccrueRewards"
	case CommandTypeClaimRewards:
		return "ClaimRewards"
	default:
		return "Unknown"
	}
}
