package sngraz

// Wire types for the portal API. Field names follow the server's JSON.

type installationRecord struct {
	InstallationID     int                `json:"installationID"`
	CustomerID         int                `json:"customerID"`
	CustomerNumber     int                `json:"customerNumber"`
	InstallationNumber int                `json:"installationNumber"`
	Address            string             `json:"address"`
	MeterPoints        []meterPointRecord `json:"meterPoints"`
}

type meterPointRecord struct {
	MeterPointID int    `json:"meterPointID"`
	Name         string `json:"name"`
	ShortName    string `json:"shortName"`
	OptState     struct {
		CurrentOptState string `json:"currentOptState"`
	} `json:"optState"`
}

type meterMetaDataRequest struct {
	MeterPointID int `json:"meterPointId"`
}

type meterMetaDataResponse struct {
	ReadingsAvailableSince string `json:"readingsAvailableSince"`
}

type meterReadingRequest struct {
	UnitOfConsump string `json:"unitOfConsump"`
	Interval      string `json:"interval"`
	MeterPointID  int    `json:"meterPointId"`
	FromDate      string `json:"fromDate"`
	ToDate        string `json:"toDate"`
}

type meterReadingResponse struct {
	Readings []rawReading `json:"readings"`
}

type rawReading struct {
	ReadTime      string         `json:"readTime"`
	ReadingValues []ReadingValue `json:"readingValues"`
}
