// Seeds a running instance with demo departments, spare doctors and a few
// patients so dashboards have something to show.
//
//	go run scripts/seed.go -addr http://localhost:8080
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"
)

type department struct {
	Name          string `json:"name"`
	Code          string `json:"code"`
	Capacity      int    `json:"capacity"`
	ActiveDoctors int    `json:"active_doctors"`
}

type spareDoctor struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Specialty           string `json:"specialty"`
	HospitalOrigin      string `json:"hospital_origin"`
	MaxPatients         int    `json:"max_patients"`
	SupportsTeleconsult bool   `json:"supports_teleconsult"`
}

type checkIn struct {
	PatientID    string   `json:"patient_id"`
	PatientName  string   `json:"patient_name"`
	Department   string   `json:"department"`
	Symptoms     []string `json:"symptoms"`
	Duration     string   `json:"duration"`
	SelfSeverity int      `json:"self_severity"`
	Age          int      `json:"age"`
}

func main() {
	addr := flag.String("addr", "http://localhost:8080", "base URL of the running API")
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}

	departments := []department{
		{Name: "cardiology", Code: "CAR", Capacity: 40, ActiveDoctors: 3},
		{Name: "general", Code: "GEN", Capacity: 60, ActiveDoctors: 4},
		{Name: "pediatrics", Code: "PED", Capacity: 30, ActiveDoctors: 2},
	}
	for _, d := range departments {
		post(client, *addr+"/api/departments", d)
	}

	doctors := []spareDoctor{
		{ID: "spare-001", Name: "Dr. Mensah", Specialty: "cardiology", HospitalOrigin: "central", MaxPatients: 10},
		{ID: "spare-002", Name: "Dr. Osei", Specialty: "general", HospitalOrigin: "central", MaxPatients: 12, SupportsTeleconsult: true},
		{ID: "spare-003", Name: "Dr. Adjei", Specialty: "pediatrics", HospitalOrigin: "eastside", MaxPatients: 8},
	}
	for _, d := range doctors {
		post(client, *addr+"/api/pool/doctors", d)
	}

	patients := []checkIn{
		{PatientID: "demo-p1", PatientName: "Ama K.", Department: "cardiology", Symptoms: []string{"chest_pain"}, Duration: "2_to_24h", SelfSeverity: 8, Age: 67},
		{PatientID: "demo-p2", PatientName: "Kofi B.", Department: "general", Symptoms: []string{"fever", "headache"}, Duration: "1_to_3d", SelfSeverity: 5, Age: 34},
		{PatientID: "demo-p3", PatientName: "Esi T.", Department: "pediatrics", Symptoms: []string{"mild_cough"}, Duration: "over_3d", SelfSeverity: 3, Age: 4},
	}
	for _, p := range patients {
		post(client, *addr+"/api/queue/check-in", p)
	}

	log.Println("seed complete")
}

func post(client *http.Client, url string, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Fatalf("marshal payload for %s: %v", url, err)
	}

	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var errBody map[string]string
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		log.Printf("POST %s -> %d %s", url, resp.StatusCode, errBody["error"])
		return
	}
	fmt.Printf("POST %s -> %d\n", url, resp.StatusCode)
}
