// Command seatrace fires concurrent enrollment attempts at a single
// subject and tallies the outcomes. Run it against a subject with fewer
// seats than students to verify that exactly available_seats attempts
// succeed and the rest are rejected with NO_SEATS or a retryable
// ENROLLMENT_CONFLICT.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync"
	"time"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type accountsFile struct {
	Students []credentials `json:"students"`
}

type attempt struct {
	Email     string
	Status    int
	Code      string
	Retryable bool
	Duration  time.Duration
	Err       error
}

func main() {
	var (
		base         string
		subjectID    string
		semesterID   string
		accountsPath string
		timeout      time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080", "API base URL")
	flag.StringVar(&subjectID, "subject", "", "Subject ID to race for")
	flag.StringVar(&semesterID, "semester", "", "Semester ID of the subject")
	flag.StringVar(&accountsPath, "accounts", "scripts/seatrace/accounts.json", "Path to student credentials file")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "HTTP client timeout")
	flag.Parse()

	if subjectID == "" || semesterID == "" {
		log.Fatal("both -subject and -semester are required")
	}

	students, err := loadAccounts(accountsPath)
	if err != nil {
		log.Fatalf("failed to load accounts: %v", err)
	}

	client := &http.Client{Timeout: timeout}

	tokens := make([]string, len(students))
	for i, s := range students {
		token, err := login(client, base, s)
		if err != nil {
			log.Fatalf("login failed for %s: %v", s.Email, err)
		}
		tokens[i] = token
	}

	// Release all attempts at once.
	start := make(chan struct{})
	results := make([]attempt, len(students))
	var wg sync.WaitGroup
	for i := range students {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i] = enroll(client, base, tokens[i], students[i].Email, subjectID, semesterID)
		}(i)
	}
	close(start)
	wg.Wait()

	printReport(results)
}

func loadAccounts(path string) ([]credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file accountsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if len(file.Students) == 0 {
		return nil, fmt.Errorf("no students defined in %s", path)
	}
	return file.Students, nil
}

func login(client *http.Client, base string, creds credentials) (string, error) {
	payload, _ := json.Marshal(creds)
	resp, err := client.Post(base+"/api/v1/auth/login", "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
	var envelope struct {
		Data struct {
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", err
	}
	return envelope.Data.AccessToken, nil
}

func enroll(client *http.Client, base, token, email, subjectID, semesterID string) attempt {
	result := attempt{Email: email}
	payload, _ := json.Marshal(map[string]string{
		"subject_id":  subjectID,
		"semester_id": semesterID,
	})
	req, err := http.NewRequest(http.MethodPost, base+"/api/v1/enrollments", bytes.NewReader(payload))
	if err != nil {
		result.Err = err
		return result
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	begin := time.Now()
	resp, err := client.Do(req)
	result.Duration = time.Since(begin)
	if err != nil {
		result.Err = err
		return result
	}
	defer resp.Body.Close()

	result.Status = resp.StatusCode
	var envelope struct {
		Error struct {
			Code      string `json:"code"`
			Retryable bool   `json:"retryable"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil {
		result.Code = envelope.Error.Code
		result.Retryable = envelope.Error.Retryable
	}
	return result
}

func printReport(results []attempt) {
	counts := make(map[string]int)
	for _, r := range results {
		label := fmt.Sprintf("%d", r.Status)
		if r.Code != "" {
			label = fmt.Sprintf("%d %s", r.Status, r.Code)
		}
		if r.Err != nil {
			label = "error"
		}
		counts[label]++
		retry := ""
		if r.Retryable {
			retry = " (retryable)"
		}
		if r.Err != nil {
			fmt.Printf("%-30s error: %v\n", r.Email, r.Err)
			continue
		}
		fmt.Printf("%-30s %d %s%s in %s\n", r.Email, r.Status, r.Code, retry, r.Duration)
	}

	fmt.Println("---")
	for label, n := range counts {
		fmt.Printf("%-25s %d\n", label, n)
	}
}
