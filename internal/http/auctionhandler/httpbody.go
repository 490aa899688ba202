package auctionhandler

type CreateAuctionBody struct {
	CreatorID     int64   `json:"creator_id"     binding:"required"`
	Title         string  `json:"title"          binding:"required"`
	StartPrice    float64 `json:"start_price"    binding:"required,gt=0"`
	DurationHours int     `json:"duration_hours" binding:"required,gte=1"`
	Description   string  `json:"description"`
	PhotoURL      string  `json:"photo_url"`
	MediaType     string  `json:"media_type"`
	CustomMessage string  `json:"custom_message"`
}

type JoinAuctionBody struct {
	UserID int64 `json:"user_id" binding:"required"`
}

type PlaceBidBody struct {
	UserID int64   `json:"user_id" binding:"required"`
	Amount float64 `json:"amount"  binding:"required,gt=0"`
}

type EndAuctionBody struct {
	RequesterID int64 `json:"requester_id" binding:"required"`
}

type EditTextBody struct {
	Value string `json:"value" binding:"required"`
}

type EditPriceBody struct {
	Value float64 `json:"value" binding:"required,gt=0"`
}

type ListCompletedQuery struct {
	Limit int `form:"limit,default=10" binding:"gte=0,lte=100"`
}

type CreatedResponse struct {
	AuctionID string `json:"auction_id"`
}

type ResultResponse struct {
	OK bool `json:"ok"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
