// Package seed builds the default five-node network used to bootstrap an
// empty store.
package seed

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/crisisnet/meshcore/internal/domain/mesh"
)

var hospitals = []mesh.Hospital{
	{ID: "H100", Name: "Al-Nour General", Province: "North Province", Type: mesh.HospitalGeneral, Capacity: 193, Coordinates: mesh.Coordinates{Lat: 31.511331, Lng: 34.44155}},
	{ID: "H101", Name: "Mercy Field Hospital", Province: "Coastal Province", Type: mesh.HospitalField, Capacity: 92, Coordinates: mesh.Coordinates{Lat: 31.323211, Lng: 34.236471}},
	{ID: "H102", Name: "Eastern Relief Clinic", Province: "Eastern Province", Type: mesh.HospitalClinic, Capacity: 203, Coordinates: mesh.Coordinates{Lat: 31.440668, Lng: 34.345367}},
	{ID: "H103", Name: "Harbor Medical Center", Province: "Delta Province", Type: mesh.HospitalReferral, Capacity: 181, Coordinates: mesh.Coordinates{Lat: 31.521922, Lng: 34.429797}},
	{ID: "H104", Name: "St. Brigid Outreach", Province: "Mountain Province", Type: mesh.HospitalOutreach, Capacity: 54, Coordinates: mesh.Coordinates{Lat: 31.291331, Lng: 34.24155}},
}

var staff = []mesh.StaffMember{
	{ID: "U001", Name: "Dr. Alia Kareem", Role: mesh.RoleDirector, HospitalID: "H100", Email: "alia.kareem@h100.org", Phone: "+1004668136", Status: mesh.StaffAvailable},
	{ID: "U002", Name: "Dr. Amin Sufyan", Role: mesh.RoleDoctor, HospitalID: "H100", Email: "amin.sufyan@h100.org", Phone: "+1004903402", Status: mesh.StaffBusy},
	{ID: "U003", Name: "Dr. Lina Qadir", Role: mesh.RoleDoctor, HospitalID: "H100", Email: "lina.qadir@h100.org", Phone: "+1009478454", Status: mesh.StaffAvailable},
	{ID: "U004", Name: "Dr. Yusuf Rahman", Role: mesh.RoleDoctor, HospitalID: "H100", Email: "yusuf.rahman@h100.org", Phone: "+1001445199", Status: mesh.StaffOffDuty},
	{ID: "U005", Name: "Dr. Dalia Mourad", Role: mesh.RoleDirector, HospitalID: "H101", Email: "dalia.mourad@h101.org", Phone: "+1005328891", Status: mesh.StaffAvailable},
	{ID: "U006", Name: "Dr. Noor Bakkar", Role: mesh.RoleDoctor, HospitalID: "H101", Email: "noor.bakkar@h101.org", Phone: "+1005120032", Status: mesh.StaffBusy},
	{ID: "U007", Name: "Dr. Haris Eldin", Role: mesh.RoleDirector, HospitalID: "H102", Email: "haris.eldin@h102.org", Phone: "+1004321102", Status: mesh.StaffUnreachable},
	{ID: "U008", Name: "Dr. Mariam Halim", Role: mesh.RoleDoctor, HospitalID: "H102", Email: "mariam.halim@h102.org", Phone: "+1007433884", Status: mesh.StaffAvailable},
	{ID: "U009", Name: "Dr. Faiz Almas", Role: mesh.RoleDirector, HospitalID: "H103", Email: "faiz.almas@h103.org", Phone: "+1001993223", Status: mesh.StaffAvailable},
	{ID: "U010", Name: "Dr. Reem Alawi", Role: mesh.RoleDoctor, HospitalID: "H103", Email: "reem.alawi@h103.org", Phone: "+1005667231", Status: mesh.StaffBusy},
	{ID: "U011", Name: "Dr. Jonah Eren", Role: mesh.RoleDirector, HospitalID: "H104", Email: "jonah.eren@h104.org", Phone: "+1004223104", Status: mesh.StaffAvailable},
	{ID: "U012", Name: "Dr. Sia Farah", Role: mesh.RoleDoctor, HospitalID: "H104", Email: "sia.farah@h104.org", Phone: "+1009011330", Status: mesh.StaffAvailable},
}

type patientRow struct {
	externalID    string
	name          string
	hospitalID    string
	doctorID      string
	bloodType     string
	allergies     []string
	prescriptions []string
	lastSeen      string
	conditions    []string
}

var patients = []patientRow{
	{"P1000", "Khaled Saar", "H102", "U008", "O-", []string{"Peanuts"}, []string{"Insulin"}, "2025-10-15", []string{"Trauma"}},
	{"P1001", "Mira Joud", "H100", "U004", "A+", []string{"Latex"}, []string{"Prenatal Vitamins"}, "2025-11-17", []string{"Pregnancy"}},
	{"P1002", "Faris Leyth", "H102", "U008", "O-", nil, []string{"Metformin"}, "2025-10-17", []string{"Diabetes"}},
	{"P1003", "Samira Daan", "H101", "U006", "B-", []string{"Dust"}, []string{"Ventolin"}, "2025-11-11", []string{"Asthma"}},
	{"P1004", "Nour Sabri", "H103", "U010", "AB+", []string{"Shellfish"}, []string{"Ibuprofen"}, "2025-11-09", []string{"Infection"}},
	{"P1005", "Lamia Eren", "H104", "U012", "O+", []string{"Penicillin"}, nil, "2025-09-22", []string{"Dehydration"}},
	{"P1006", "Tariq Basim", "H100", "U003", "B+", nil, []string{"Painkillers"}, "2025-10-30", []string{"Fracture"}},
	{"P1007", "Yara Shireen", "H101", "U006", "A-", nil, nil, "2025-11-01", []string{"Cold symptoms"}},
	{"P1008", "Laith Omar", "H103", "U010", "O+", []string{"Dust"}, []string{"Insulin"}, "2025-11-12", []string{"Diabetic episode"}},
	{"P1009", "Malak Zidan", "H104", "U012", "B+", []string{"Peanuts"}, []string{"Antibiotics"}, "2025-11-18", []string{"Bacterial infection"}},
	{"P1010", "Adnan Nouri", "H100", "U002", "O-", nil, nil, "2025-11-16", []string{"Chest Pain"}},
	{"P1011", "Reem Fazal", "H100", "U003", "A+", []string{"Shellfish"}, []string{"Painkillers"}, "2025-11-03", []string{"Fever"}},
	{"P1012", "Rani Musa", "H102", "U008", "B-", nil, nil, "2025-10-11", []string{"Checkup"}},
	{"P1013", "Omar Nabil", "H102", "U008", "O+", []string{"Pollen"}, []string{"Metformin"}, "2025-11-10", []string{"Diabetes follow-up"}},
	{"P1014", "Salma Rami", "H103", "U010", "A-", []string{"Latex"}, []string{"Antibiotics"}, "2025-10-28", []string{"Injury"}},
	{"P1015", "Fadi Harun", "H104", "U012", "O+", nil, nil, "2025-11-05", []string{"Skin rash"}},
	{"P1016", "Ruba Hadi", "H104", "U012", "B+", []string{"Penicillin"}, nil, "2025-11-12", []string{"Fever"}},
	{"P1017", "Darim Noor", "H101", "U006", "AB-", nil, []string{"Ventolin"}, "2025-11-14", []string{"Asthma check"}},
	{"P1018", "Naji Sulaym", "H100", "U002", "O+", nil, nil, "2025-11-08", []string{"Headache"}},
	{"P1019", "Aliya Fay", "H103", "U010", "A+", []string{"Peanuts"}, []string{"Painkillers"}, "2025-11-18", []string{"Joint pain"}},
}

var supplies = []mesh.SupplyStock{
	{ID: "R3000", HospitalID: "H100", Item: "Insulin", Category: mesh.CategoryMedicine, Quantity: 733, Unit: "vials", CriticalThreshold: 100, DailyUsage: 4},
	{ID: "R3001", HospitalID: "H100", Item: "Bandages", Category: mesh.CategoryTools, Quantity: 206, Unit: "rolls", CriticalThreshold: 100, DailyUsage: 18},
	{ID: "R3006", HospitalID: "H100", Item: "Trauma Kits", Category: mesh.CategoryTools, Quantity: 15, Unit: "kits", CriticalThreshold: 25, DailyUsage: 3},
	{ID: "R3007", HospitalID: "H100", Item: "Generator Fuel", Category: mesh.CategoryTools, Quantity: 450, Unit: "Liters", CriticalThreshold: 200, DailyUsage: 50},
	{ID: "R3008", HospitalID: "H100", Item: "O- Blood", Category: mesh.CategoryBlood, Quantity: 8, Unit: "pints", CriticalThreshold: 10, DailyUsage: 2},

	{ID: "R3002", HospitalID: "H101", Item: "IV Fluids", Category: mesh.CategoryMedicine, Quantity: 120, Unit: "bags", CriticalThreshold: 50, DailyUsage: 15},
	{ID: "R3009", HospitalID: "H101", Item: "Sutures", Category: mesh.CategoryTools, Quantity: 45, Unit: "packs", CriticalThreshold: 30, DailyUsage: 8},
	{ID: "R3010", HospitalID: "H101", Item: "Tetanus Toxoid", Category: mesh.CategoryMedicine, Quantity: 80, Unit: "vials", CriticalThreshold: 20, DailyUsage: 4},

	{ID: "R3003", HospitalID: "H102", Item: "Antibiotics", Category: mesh.CategoryMedicine, Quantity: 540, Unit: "packs", CriticalThreshold: 100, DailyUsage: 20},
	{ID: "R3011", HospitalID: "H102", Item: "PPE (Gloves)", Category: mesh.CategoryTools, Quantity: 1200, Unit: "pairs", CriticalThreshold: 500, DailyUsage: 100},
	{ID: "R3012", HospitalID: "H102", Item: "Amoxicillin", Category: mesh.CategoryMedicine, Quantity: 20, Unit: "bottles", CriticalThreshold: 50, DailyUsage: 5},

	{ID: "R3004", HospitalID: "H103", Item: "Insulin", Category: mesh.CategoryMedicine, Quantity: 220, Unit: "vials", CriticalThreshold: 50, DailyUsage: 12},
	{ID: "R3013", HospitalID: "H103", Item: "Anesthetics (Lidocaine)", Category: mesh.CategoryMedicine, Quantity: 140, Unit: "vials", CriticalThreshold: 100, DailyUsage: 10},
	{ID: "R3014", HospitalID: "H103", Item: "Surgical Mesh", Category: mesh.CategoryTools, Quantity: 30, Unit: "units", CriticalThreshold: 15, DailyUsage: 2},

	{ID: "R3005", HospitalID: "H104", Item: "Bandages", Category: mesh.CategoryTools, Quantity: 90, Unit: "rolls", CriticalThreshold: 50, DailyUsage: 10},
	{ID: "R3015", HospitalID: "H104", Item: "Water Purification Tablets", Category: mesh.CategoryTools, Quantity: 5000, Unit: "tabs", CriticalThreshold: 1000, DailyUsage: 200},
	{ID: "R3016", HospitalID: "H104", Item: "Paracetamol", Category: mesh.CategoryMedicine, Quantity: 800, Unit: "strips", CriticalThreshold: 200, DailyUsage: 40},
}

var orders = []mesh.SupplyRequest{
	{ID: "O2000", Requester: "U009", RequesterName: "Dr. Faiz Almas", HospitalID: "H103", TargetHospitalID: "H100", Severity: mesh.SeverityLow, ItemName: "Request for Insulin", RequiredByDate: "2025-11-22", ResourceTypes: []mesh.ResourceType{mesh.ResourceMedicine}, Quantity: 450, Status: mesh.RequestPending, Timestamp: stamp("2025-11-20T22:56:41")},
	{ID: "O2001", Requester: "U009", RequesterName: "Dr. Faiz Almas", HospitalID: "H103", TargetHospitalID: "H103", Severity: mesh.SeverityCritical, ItemName: "Bandages (Mass Casualty)", RequiredByDate: "2025-11-21", ResourceTypes: []mesh.ResourceType{mesh.ResourceTools}, Quantity: 276, Status: mesh.RequestInProgress, Timestamp: stamp("2025-11-19T20:56:41")},
	{ID: "O2002", Requester: "U011", RequesterName: "Dr. Jonah Eren", HospitalID: "H104", TargetHospitalID: "H101", Severity: mesh.SeverityMedium, ItemName: "IV Fluids Dehydration", RequiredByDate: "2025-11-23", ResourceTypes: []mesh.ResourceType{mesh.ResourceMedicine}, Quantity: 300, Status: mesh.RequestPending, Timestamp: stamp("2025-11-20T19:10:12")},
	{ID: "O2003", Requester: "U007", RequesterName: "Dr. Haris Eldin", HospitalID: "H102", TargetHospitalID: "H104", Severity: mesh.SeverityLow, ItemName: "Winter Antibiotics", RequiredByDate: "2025-12-01", ResourceTypes: []mesh.ResourceType{mesh.ResourceMedicine}, Quantity: 150, Status: mesh.RequestPending, Timestamp: stamp("2025-11-18T11:30:44")},
}

func stamp(s string) time.Time {
	t, err := time.Parse("2006-01-02T15:04:05", s)
	if err != nil {
		panic(fmt.Sprintf("seed: bad timestamp %q", s))
	}
	return t.UTC()
}

var nonAlnum = regexp.MustCompile(`[^A-Z0-9]`)

// PatientID derives the stable internal id from a name and a YYYY-MM-DD birth date
func PatientID(name, dob string) string {
	clean := nonAlnum.ReplaceAllString(strings.ToUpper(strings.TrimSpace(name)), "")
	return clean + "-" + strings.ReplaceAll(dob, "-", "")
}

// simulatedDOB spreads birth dates between 1970 and 2009
func simulatedDOB(i int) string {
	year := 1970 + (i*37)%40
	month := 1 + (i*7)%12
	day := 1 + (i*13)%28
	return fmt.Sprintf("%d-%02d-%02d", year, month, day)
}

func initialStatus(conditions []string) mesh.CriticalStatus {
	has := func(c string) bool {
		for _, x := range conditions {
			if x == c {
				return true
			}
		}
		return false
	}
	switch {
	case has("Trauma"), has("Diabetic episode"), has("Chest Pain"):
		return mesh.PatientCritical
	case has("Fever"), has("Infection"):
		return mesh.PatientUnstable
	default:
		return mesh.PatientStable
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return append([]string(nil), s...)
}

// Network returns a fresh copy of the default network. Staff check-ins are
// stamped with now.
func Network(now time.Time) *mesh.Snapshot {
	snap := mesh.NewSnapshot()
	snap.Hospitals = append(snap.Hospitals, hospitals...)

	for _, m := range staff {
		m.LastCheckIn = now
		snap.Staff = append(snap.Staff, m)
	}

	hospitalName := make(map[string]string, len(hospitals))
	for _, h := range hospitals {
		hospitalName[h.ID] = h.Name
	}
	doctorName := make(map[string]string, len(staff))
	for _, m := range staff {
		doctorName[m.ID] = m.Name
	}

	for i, row := range patients {
		dob := simulatedDOB(i)
		lastSeen := stamp(row.lastSeen + "T00:00:00")
		rx := "None"
		if len(row.prescriptions) > 0 {
			rx = strings.Join(row.prescriptions, ", ")
		}
		snap.Patients = append(snap.Patients, mesh.Patient{
			ID:                  PatientID(row.name, dob),
			ExternalID:          row.externalID,
			Name:                row.name,
			DateOfBirth:         dob,
			BloodType:           row.bloodType,
			Allergies:           nonNil(row.allergies),
			Conditions:          nonNil(row.conditions),
			ActivePrescriptions: nonNil(row.prescriptions),
			HospitalID:          row.hospitalID,
			AssignedDoctorID:    row.doctorID,
			Status:              initialStatus(row.conditions),
			LastUpdated:         lastSeen,
			Records: []mesh.MedicalRecord{{
				ID:          fmt.Sprintf("rec-%s-1", row.externalID),
				Date:        lastSeen.Format(time.RFC3339),
				Type:        mesh.RecordNote,
				Description: fmt.Sprintf("Condition Summary: %s. Active Rx: %s.", strings.Join(row.conditions, ", "), rx),
				DoctorName:  doctorName[row.doctorID],
				Location:    hospitalName[row.hospitalID],
			}},
		})
	}

	for _, line := range supplies {
		line.Tags = []mesh.ResourceType{mesh.ResourceTypeFor(line.Category)}
		snap.Supplies = append(snap.Supplies, line)
	}
	for _, o := range orders {
		o.ResourceTypes = append([]mesh.ResourceType(nil), o.ResourceTypes...)
		snap.SupplyRequests = append(snap.SupplyRequests, o)
	}

	snap.ConnectedPeers = len(hospitals) - 1
	snap.LastSync = now
	return snap
}

// Default is Network stamped with the wall clock, shaped for mesh.Bootstrap
func Default() *mesh.Snapshot {
	return Network(mesh.SystemClock())
}

// PatientByExternalID finds a seeded patient by its registry id
func PatientByExternalID(snap *mesh.Snapshot, externalID string) *mesh.Patient {
	for i := range snap.Patients {
		if snap.Patients[i].ExternalID == externalID {
			return &snap.Patients[i]
		}
	}
	return nil
}
