package schedule

// InitialURLs are the agency pages the schedule starts with
var InitialURLs = []string{
	"https://www.isro.gov.in/",
	"https://nrsc.gov.in/",
	"https://ursc.gov.in/",
	"https://www.isro.gov.in/PSLV.html",
	"https://www.isro.gov.in/GSLV.html",
	"https://www.isro.gov.in/Spacecraft.html",
	"https://www.isro.gov.in/centres",
	"https://www.isro.gov.in/education",
	"https://www.isro.gov.in/technology-transfer",
	"https://www.isro.gov.in/innovation",
}
