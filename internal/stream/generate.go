package stream

import (
	"bufio"
	"fmt"
	"io"
	"math/rand/v2"
	"time"
)

// HeavyHitters are the source addresses GenerateTraffic over-represents.
var HeavyHitters = []string{"192.168.1.100", "192.168.1.101", "10.0.0.50"}

// GenerateTraffic writes a synthetic traffic log of n packets to w, header
// included, in the format ReadTraffic parses.
//
// Roughly 30% of packets come from one of the HeavyHitters; the rest come
// from random 192.168.x.y sources. Destinations are 10.0.0.0-99 and packet
// sizes are uniform in [100, 1500). Timestamps start at base and advance one
// second per packet.
func GenerateTraffic(w io.Writer, n int, base time.Time, rng *rand.Rand) error {
	bw := bufio.NewWriter(w)

	if _, err := fmt.Fprintln(bw, "timestamp,src_ip,dst_ip,bytes"); err != nil {
		return err
	}

	start := base.Unix()
	for i := 0; i < n; i++ {
		var src string
		if rng.IntN(100) < 30 {
			src = HeavyHitters[rng.IntN(len(HeavyHitters))]
		} else {
			src = fmt.Sprintf("192.168.%d.%d", rng.IntN(256), rng.IntN(256))
		}
		dst := fmt.Sprintf("10.0.0.%d", rng.IntN(100))
		size := 100 + rng.IntN(1400)

		if _, err := fmt.Fprintf(bw, "%d,%s,%s,%d\n", start+int64(i), src, dst, size); err != nil {
			return err
		}
	}

	return bw.Flush()
}

var (
	urlDomains = []string{
		"example.com", "test.org", "sample.net", "demo.io",
		"website.co.uk", "mysite.edu", "data.gov", "news.info",
	}
	urlPaths = []string{
		"/home", "/about", "/products", "/services", "/contact",
		"/blog", "/news", "/faq", "/help", "/login", "/signup",
		"/article", "/post", "/page", "/category", "/tag",
	}
)

// recentURLs is how many generated URLs are remembered as duplicate sources.
const recentURLs = 100

// GenerateURLs writes n URLs to w, one per line. With probability dupRate a
// line repeats one of the last 100 distinct URLs instead of a fresh one.
func GenerateURLs(w io.Writer, n int, dupRate float64, rng *rand.Rand) error {
	bw := bufio.NewWriter(w)
	recent := make([]string, 0, recentURLs)

	for i := 0; i < n; i++ {
		if len(recent) > 0 && rng.Float64() < dupRate {
			if _, err := fmt.Fprintln(bw, recent[rng.IntN(len(recent))]); err != nil {
				return err
			}
			continue
		}

		url := fmt.Sprintf("https://%s%s/%d",
			urlDomains[rng.IntN(len(urlDomains))],
			urlPaths[rng.IntN(len(urlPaths))],
			rng.IntN(10000))
		if _, err := fmt.Fprintln(bw, url); err != nil {
			return err
		}

		if len(recent) < recentURLs {
			recent = append(recent, url)
		} else {
			recent[rng.IntN(recentURLs)] = url
		}
	}

	return bw.Flush()
}
