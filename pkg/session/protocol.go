package session

import "fmt"

const icyResponse = "ICY 200 OK\r\n\r\n"

const defaultSourcetableLocation = "NTRIP Service"

// buildSourcetable renders the single-mount sourcetable block the proxy
// advertises for its own downstream mount point.
func buildSourcetable(mount, location string) string {
	if location == "" {
		location = defaultSourcetableLocation
	}
	lines := []string{
		"SOURCETABLE 200 OK",
		"Content-Type: text/plain",
		"",
		fmt.Sprintf("STR;%s;%s;RTCM 3;;2;GPS;NTRIP;USA;0;0;1;0;none;none;B;N;0;", mount, location),
		"ENDSOURCETABLE",
	}
	out := ""
	for _, l := range lines {
		out += l + "\r\n"
	}
	return out
}
