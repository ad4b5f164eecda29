package schema

// CanonicalCategories is derived from categories by the pipeline.
const CanonicalCategories = "canonical_categories"

var listingFields = []Field{
	{Name: "categories", Kind: KindStringList, Table: TableListing,
		Description: "All relevant categories, sports or activities (e.g. ['padel', 'pickleball', 'tennis'])"},
	{Name: CanonicalCategories, Kind: KindStringList, Table: TableListing, Internal: true,
		Description: "Controlled taxonomy derived from categories"},
	{Name: "summary", Kind: KindString, Table: TableListing,
		Description: "One or two sentence factual description of the entity"},
	{Name: "other_attributes", Kind: KindObject, Table: TableListing,
		Description: "Additional attributes that do not fit the standard fields"},

	{Name: "street_address", Kind: KindString, Table: TableListing,
		Description: "Full street address including building number and street name"},
	{Name: "city", Kind: KindString, Table: TableListing, Description: "City or town"},
	{Name: "postcode", Kind: KindString, Table: TableListing,
		Description: "Full UK postcode with correct spacing (e.g. 'SW1A 0AA')"},
	{Name: "country", Kind: KindString, Table: TableListing, Description: "Country name"},
	{Name: "latitude", Kind: KindNumber, Table: TableListing,
		Description: "WGS84 latitude in decimal degrees"},
	{Name: "longitude", Kind: KindNumber, Table: TableListing,
		Description: "WGS84 longitude in decimal degrees"},

	{Name: "phone", Kind: KindString, Table: TableListing,
		Description: "Primary contact phone number with country code (e.g. '+44 20 7946 0000')"},
	{Name: "email", Kind: KindString, Table: TableListing, Description: "Primary public email address"},
	{Name: "website_url", Kind: KindString, Table: TableListing, Description: "Official website URL"},
	{Name: "instagram_url", Kind: KindString, Table: TableListing, Description: "Instagram profile URL or handle"},
	{Name: "facebook_url", Kind: KindString, Table: TableListing, Description: "Facebook page URL"},
	{Name: "twitter_url", Kind: KindString, Table: TableListing, Description: "Twitter/X profile URL or handle"},
	{Name: "linkedin_url", Kind: KindString, Table: TableListing, Description: "LinkedIn company page URL"},

	{Name: "opening_hours", Kind: KindObject, Table: TableListing,
		Description: "Keys are lowercase weekday names; values are {\"open\": \"HH:MM\", \"close\": \"HH:MM\"} or the string \"CLOSED\""},
}

var venueFields = []Field{
	{Name: "tennis_total_courts", Kind: KindInteger, Table: TableEntity, Description: "Total number of tennis courts"},
	{Name: "tennis_covered_courts", Kind: KindInteger, Table: TableEntity, Description: "Number of indoor/covered tennis courts"},
	{Name: "tennis_floodlit_courts", Kind: KindInteger, Table: TableEntity, Description: "Number of floodlit tennis courts"},
	{Name: "padel_total_courts", Kind: KindInteger, Table: TableEntity, Description: "Total number of padel courts"},
	{Name: "padel_covered_courts", Kind: KindInteger, Table: TableEntity, Description: "Number of indoor/covered padel courts"},
	{Name: "padel_floodlit_courts", Kind: KindInteger, Table: TableEntity, Description: "Number of floodlit padel courts"},
	{Name: "squash_total_courts", Kind: KindInteger, Table: TableEntity, Description: "Total number of squash courts"},
	{Name: "squash_covered_courts", Kind: KindInteger, Table: TableEntity, Description: "Number of indoor/covered squash courts"},
	{Name: "pickleball_total_courts", Kind: KindInteger, Table: TableEntity, Description: "Total number of pickleball courts"},
	{Name: "pickleball_covered_courts", Kind: KindInteger, Table: TableEntity, Description: "Number of indoor/covered pickleball courts"},
	{Name: "table_tennis_total_tables", Kind: KindInteger, Table: TableEntity, Description: "Total number of table tennis tables"},
	{Name: "has_cafe", Kind: KindBool, Table: TableEntity, Description: "Whether the venue has a cafe or bar on site"},
	{Name: "has_parking", Kind: KindBool, Table: TableEntity, Description: "Whether on-site parking is available"},
}

var entityFieldSets = map[string][]Field{
	"venue": venueFields,
}
