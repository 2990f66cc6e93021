package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"whatsapp-monitor/config"
	"whatsapp-monitor/internal/handlers"
	"whatsapp-monitor/internal/services"
	"whatsapp-monitor/internal/supabase"
	"whatsapp-monitor/internal/utils"
	"whatsapp-monitor/internal/wsnotify"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title WhatsApp Monitor API
// @version 1.0
// @description Console de atendimento: conversas reconciliadas em tempo real, CRM de leads e painel
// @host localhost:8081
// @BasePath /api/v1
func main() {
	cfg, err := config.LoadConfig(os.Getenv("MONITOR_CONFIG_FILE"))
	if err != nil {
		utils.LogError("Erro ao carregar configuração: %v", err)
		os.Exit(1)
	}
	utils.SetLogLevel(cfg.LogLevel)

	settings, err := config.OpenSettingsStore(cfg.SettingsDB)
	if err != nil {
		utils.LogError("Erro ao abrir banco de configurações: %v", err)
		os.Exit(1)
	}
	defer settings.Close()

	hub := wsnotify.NewHub()

	// O console recebe a fábrica do cliente Supabase; trocar credenciais
	// constrói um cliente novo em vez de reinicializar um global
	console := services.NewConsole(settings,
		func(backendURL, backendKey string) services.DataSource {
			return supabase.NewClient(backendURL, backendKey, cfg.HistoryLimit)
		},
		func(event services.ChangeEvent) {
			hub.Broadcast(event)
		})

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	console.AutoConnect(rootCtx, config.BackendSettings{
		BackendURL: cfg.Backend.URL,
		BackendKey: cfg.Backend.Key,
	})

	httpHandler := handlers.NewHTTPHandler(console)
	router := mux.NewRouter().PathPrefix("/api/v1").Subrouter()

	router.HandleFunc("/conversations", httpHandler.GetConversations).Methods("GET", "OPTIONS")
	router.HandleFunc("/conversations/{id}", httpHandler.GetConversation).Methods("GET", "OPTIONS")
	router.HandleFunc("/conversations/{id}/select", httpHandler.SelectConversation).Methods("POST", "OPTIONS")
	router.HandleFunc("/send-message", httpHandler.SendMessage).Methods("POST", "OPTIONS")

	// Rotas de CRM e painel
	router.HandleFunc("/contacts", httpHandler.GetContacts).Methods("GET", "OPTIONS")
	router.HandleFunc("/contacts/lookup", httpHandler.LookupContact).Methods("GET", "OPTIONS")
	router.HandleFunc("/crm/board", httpHandler.GetCRMBoard).Methods("GET", "OPTIONS")
	router.HandleFunc("/dashboard", httpHandler.GetDashboard).Methods("GET", "OPTIONS")

	// Rotas de status e configuração
	router.HandleFunc("/status", httpHandler.GetStatus).Methods("GET", "OPTIONS")
	router.HandleFunc("/settings", httpHandler.GetSettings).Methods("GET", "OPTIONS")
	router.HandleFunc("/settings", httpHandler.SaveSettings).Methods("PUT", "OPTIONS")

	// Rota WebSocket de push para o navegador
	router.HandleFunc("/ws", handlers.NewWebSocketHandler(hub))

	// Serve os arquivos estáticos do Swagger
	fs := http.FileServer(http.Dir("./docs"))
	router.PathPrefix("/swagger/").Handler(http.StripPrefix("/api/v1/swagger/", fs))

	router.PathPrefix("/swagger-ui/").Handler(httpSwagger.Handler(
		httpSwagger.URL("http://localhost"+cfg.ListenAddr+"/api/v1/swagger/swagger.json"),
		httpSwagger.DeepLinking(true),
	))

	mainRouter := mux.NewRouter()
	mainRouter.PathPrefix("/api/v1").Handler(router)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: c.Handler(mainRouter),
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		utils.LogInfo("Servidor rodando em http://localhost%s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			utils.LogError("Erro ao subir servidor: %v", err)
			os.Exit(1)
		}
	}()

	<-stop
	fmt.Println("\nEncerrando com segurança...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		utils.LogError("Erro ao desligar servidor: %v", err)
	}

	// Derruba a assinatura realtime antes de sair
	console.Shutdown()
	rootCancel()

	utils.LogInfo("Servidor encerrado com sucesso")
}
