package model

// Offer is a product offer returned by the offer API.
type Offer struct {
	OfferID   string      `json:"offerId"`
	OfferName string      `json:"offerName"`
	OfferCode string      `json:"offerCode"`
	Cards     []OfferCard `json:"cards,omitempty"`
}

// OfferCard is one presentable card of an offer. Flattened cards carry the
// identity of the offer they belong to.
type OfferCard struct {
	CardID      string   `json:"cardId"`
	CardTitle   string   `json:"cardTitle"`
	Description string   `json:"description"`
	Benefits    []string `json:"benefits"`

	OfferID   string `json:"offerId"`
	OfferName string `json:"offerName,omitempty"`
	OfferCode string `json:"offerCode,omitempty"`
}

// OfferQuery filters the available-offer search. Empty members are omitted
// from the upstream request.
type OfferQuery struct {
	ProductDependency string `json:"productDependency,omitempty"`
	Product           string `json:"product,omitempty"`
	ClassName         string `json:"className,omitempty"`
}

// OfferList is the flattened response of the available-offers operation.
type OfferList struct {
	Offers []Offer     `json:"offers"`
	Cards  []OfferCard `json:"cards"`
}
