// Test receiver for local webhook delivery testing. It verifies the
// signature of every delivery against a shared secret and can simulate
// latency and failures.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/colin330smith/callbot-ai/internal/signature"
)

var (
	requestCount uint64
	successCount uint64
	failureCount uint64
	badSigCount  uint64
)

func main() {
	port := flag.Int("port", 9999, "port to listen on")
	secret := flag.String("secret", "", "signing secret to verify deliveries against")
	fail := flag.Bool("fail", false, "return 500 errors")
	failRate := flag.Float64("fail-rate", 0, "random failure rate (0.0-1.0)")
	latency := flag.Int("latency", 100, "average response latency in ms")
	jitter := flag.Int("jitter", 20, "latency jitter in ms (+/-)")
	quiet := flag.Bool("quiet", false, "suppress per-request logging")
	flag.Parse()

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		for range ticker.C {
			total := atomic.LoadUint64(&requestCount)
			success := atomic.LoadUint64(&successCount)
			failures := atomic.LoadUint64(&failureCount)
			badSigs := atomic.LoadUint64(&badSigCount)
			if total > 0 {
				fmt.Printf("[STATS] Total: %d | Success: %d | Failures: %d | Bad signatures: %d | Rate: %.1f req/s\n",
					total, success, failures, badSigs, float64(total)/5.0)
				atomic.StoreUint64(&requestCount, 0)
				atomic.StoreUint64(&successCount, 0)
				atomic.StoreUint64(&failureCount, 0)
				atomic.StoreUint64(&badSigCount, 0)
			}
		}
	}()

	http.HandleFunc("/webhook", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddUint64(&requestCount, 1)

		delay := time.Duration(*latency) * time.Millisecond
		if *jitter > 0 {
			jitterMs := rand.Intn(*jitter*2) - *jitter
			delay += time.Duration(jitterMs) * time.Millisecond
		}
		time.Sleep(delay)

		body, _ := io.ReadAll(r.Body)

		if *secret != "" {
			sig := r.Header.Get("X-CallBotAI-Signature")
			if !signature.Verify(body, sig, *secret) {
				atomic.AddUint64(&badSigCount, 1)
				if !*quiet {
					fmt.Printf("[BAD SIG] Event: %s\n", r.Header.Get("X-CallBotAI-Event"))
				}
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte("bad signature"))
				return
			}
		}

		shouldFail := *fail || (*failRate > 0 && rand.Float64() < *failRate)

		if !*quiet {
			fmt.Printf("[REQ] Event: %s | Timestamp: %s | Latency: %v | Fail: %v\n",
				r.Header.Get("X-CallBotAI-Event"),
				r.Header.Get("X-CallBotAI-Timestamp"),
				delay,
				shouldFail)
			if len(body) > 0 && len(body) < 300 {
				fmt.Printf("      Body: %s\n", string(body))
			}
		}

		if shouldFail {
			atomic.AddUint64(&failureCount, 1)
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("simulated failure"))
		} else {
			atomic.AddUint64(&successCount, 1)
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("OK"))
		}
	})

	addr := fmt.Sprintf(":%d", *port)
	fmt.Printf("Test receiver listening on %s/webhook\n", addr)
	if *secret != "" {
		fmt.Println("Verifying signatures")
	}
	log.Fatal(http.ListenAndServe(addr, nil))
}
